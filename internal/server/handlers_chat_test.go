package server

import (
	"strings"
	"testing"

	"github.com/rushi32/IsoCode/pkg/types"
)

func TestChatRequest_ModeOf(t *testing.T) {
	cases := []struct {
		name string
		req  ChatRequest
		want types.Mode
	}{
		{"plain chat", ChatRequest{AutoMode: false}, types.ModeChat},
		{"plain chat ignores agentPlus", ChatRequest{AutoMode: false, AgentPlus: true}, types.ModeChat},
		{"agent", ChatRequest{AutoMode: true}, types.ModeAgent},
		{"agent plus", ChatRequest{AutoMode: true, AgentPlus: true}, types.ModeAgentPlus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.req.modeOf(); got != tc.want {
				t.Errorf("modeOf() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildUserMessage_NoContext(t *testing.T) {
	req := ChatRequest{Message: "fix the bug"}
	if got := buildUserMessage(req); got != "fix the bug" {
		t.Errorf("buildUserMessage() = %q, want %q", got, "fix the bug")
	}
}

func TestBuildUserMessage_WithContext(t *testing.T) {
	req := ChatRequest{
		Message: "fix the bug",
		Context: []contextAttachment{
			{Path: "main.go", Content: "package main"},
		},
	}
	got := buildUserMessage(req)
	if !strings.Contains(got, "fix the bug") || !strings.Contains(got, "main.go") || !strings.Contains(got, "package main") {
		t.Errorf("buildUserMessage() missing expected fragments: %q", got)
	}
}
