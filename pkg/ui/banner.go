package ui

import "strings"

const (
	reset       = "\033[0m"
	bold        = "\033[1m"
	emberRed    = "\033[38;5;196m"
	flameOrange = "\033[38;5;208m"
	honeyYellow = "\033[38;5;220m"
	mint        = "\033[38;5;121m"
	cobalt      = "\033[38;5;33m"
	deepIndigo  = "\033[38;5;61m"
	fuchsia     = "\033[38;5;177m"
)

// Banner renders a colored lowmemd wordmark.
func Banner() string {
	var b strings.Builder

	lowmemLetters := [][]string{
		{"██╗     ", "██║     ", "██║     ", "██║     ", "███████╗", "╚══════╝"},
		{" ██████╗ ", "██╔═══██╗", "██║   ██║", "██║   ██║", "╚██████╔╝", " ╚═════╝ "},
		{"██╗    ██╗", "██║    ██║", "██║ █╗ ██║", "██║███╗██║", "╚███╔███╔╝", " ╚══╝╚══╝ "},
		{"███╗   ███╗", "████╗ ████║", "██╔████╔██║", "██║╚██╔╝██║", "██║ ╚═╝ ██║", "╚═╝     ╚═╝"},
		{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "███████╗", "╚══════╝"},
		{"███╗   ███╗", "████╗ ████║", "██╔████╔██║", "██║╚██╔╝██║", "██║ ╚═╝ ██║", "╚═╝     ╚═╝"},
		{"██████╗ ", "██╔══██╗", "██║  ██║", "██║  ██║", "██████╔╝", "╚═════╝ "},
	}
	gradient := []string{emberRed, flameOrange, honeyYellow, mint, cobalt, deepIndigo, fuchsia}
	rows := make([]string, len(lowmemLetters[0]))
	for i, letter := range lowmemLetters {
		color := gradient[i%len(gradient)]
		for row := 0; row < len(letter); row++ {
			rows[row] += color + letter[row] + "  "
		}
	}
	for _, line := range rows {
		b.WriteString(bold + line + reset + "\n")
	}

	b.WriteString("\n")
	b.WriteString(bold + emberRed + "lowmemd" + reset + "  •  userspace low memory killer\n\n")

	return b.String()
}
