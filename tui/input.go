package tui

import (
	"bufio"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
)

var inputTheme = huh.ThemeBase16()

// Password prompts for a secret without echoing it.
func Password(title, description string) (string, error) {
	var value string
	err := huh.NewInput().
		Title(title).
		Prompt("> ").
		Description(description + "\n").
		EchoMode(huh.EchoModePassword).
		Value(&value).
		WithTheme(inputTheme).
		Run()
	return strings.TrimSpace(value), err
}

// ReadLine reads the first line of r, for secrets piped on stdin.
func ReadLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
