// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui provides a terminal stepper for balance sessions.
//
// # Description
//
// The stepper draws the bay the way the web grid does (source cell green,
// target cell red, the crane's park cell above the bay) and advances one
// crane operation per Enter or space. Each advance goes through the
// balance service, so journaling and the outbound manifest behave exactly
// as they do over HTTP.
//
// # Thread Safety
//
// Models are used from the bubbletea event loop only.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/ballast/services/balance"
)

// Advancer moves a session to its next step. *balance.Service satisfies it.
type Advancer interface {
	Next(ctx context.Context, id string) (*balance.GridResponse, error)
}

// stepMsg carries the result of one advance.
type stepMsg struct {
	view *balance.GridResponse
	err  error
}

type keyMap struct {
	Next key.Binding
	Help key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Next}, {k.Help, k.Quit}}
}

func defaultKeys() keyMap {
	return keyMap{
		Next: key.NewBinding(
			key.WithKeys("enter", " ", "n"),
			key.WithHelp("enter/space", "next step"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// StepperModel is the bubbletea model walking one session.
type StepperModel struct {
	ctx      context.Context
	advancer Advancer
	view     *balance.GridResponse

	keys keyMap
	help help.Model

	busy     bool
	err      error
	finished bool
	quitting bool
}

// NewStepper creates a stepper positioned at initial, typically the
// response of an upload.
func NewStepper(ctx context.Context, advancer Advancer, initial *balance.GridResponse) StepperModel {
	return StepperModel{
		ctx:      ctx,
		advancer: advancer,
		view:     initial,
		keys:     defaultKeys(),
		help:     help.New(),
	}
}

// Finished reports whether the operator walked through every step.
func (m StepperModel) Finished() bool {
	return m.finished
}

// Current returns the latest session state.
func (m StepperModel) Current() *balance.GridResponse {
	return m.view
}

// Err returns the last advance error, if any.
func (m StepperModel) Err() error {
	return m.err
}

// Init implements tea.Model.
func (m StepperModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StepperModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll

		case key.Matches(msg, m.keys.Next):
			if m.busy {
				return m, nil
			}
			if m.view.AllDone {
				m.finished = true
				return m, tea.Quit
			}
			m.busy = true
			return m, m.advance()
		}

	case stepMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.view = msg.view
		}
	}
	return m, nil
}

func (m StepperModel) advance() tea.Cmd {
	ctx, adv, id := m.ctx, m.advancer, string(m.view.SessionID)
	return func() tea.Msg {
		view, err := adv.Next(ctx, id)
		return stepMsg{view: view, err: err}
	}
}

// View implements tea.Model.
func (m StepperModel) View() string {
	if m.quitting {
		return "Stopped before the plan was finished.\n"
	}
	return m.render()
}
