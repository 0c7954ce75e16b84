package main

import (
	"fmt"
	"strings"

	"github.com/yourusername/streamsave-go/internal/client"
)

const barWidth = 30

// consoleSink renders session progress as a single rewritten terminal line
type consoleSink struct {
	lastStatus string
	percent    int
}

func newConsoleSink() *consoleSink {
	return &consoleSink{}
}

func (s *consoleSink) ShowProgress(percent int) {
	s.percent = percent
	s.redraw()
}

func (s *consoleSink) ShowStatus(message string, kind client.StatusKind) {
	s.lastStatus = message
	s.redraw()
}

func (s *consoleSink) ShowComplete(fileName string) {
	s.percent = 100
	s.lastStatus = ""
	s.redraw()
	fmt.Printf("\nSaved %s\n", fileName)
}

func (s *consoleSink) ShowError(message string) {
	fmt.Printf("\nError: %s\n", message)
}

func (s *consoleSink) redraw() {
	filled := s.percent * barWidth / 100
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
	fmt.Printf("\r[%s] %3d%%  %-50s", bar, s.percent, s.lastStatus)
}
