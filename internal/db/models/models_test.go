package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLog_DecodeAction(t *testing.T) {
	entry := &AuditLog{
		Action: json.RawMessage(`{"type":"db-credential.created","payload":{"id":"cred-1","name":"payments ro"}}`),
	}

	action, err := entry.DecodeAction()
	require.NoError(t, err)
	assert.Equal(t, "db-credential.created", action.Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(action.Payload, &payload))
	assert.Equal(t, "cred-1", payload["id"])
	assert.Equal(t, "payments ro", payload["name"])
}

func TestAuditLog_DecodeAction_InvalidJSON(t *testing.T) {
	entry := &AuditLog{Action: json.RawMessage(`{not json`)}

	action, err := entry.DecodeAction()
	assert.Error(t, err)
	assert.Nil(t, action)
}

func TestIsValidAccessLevel(t *testing.T) {
	assert.True(t, IsValidAccessLevel(AccessReadOnly))
	assert.True(t, IsValidAccessLevel(AccessReadWrite))
	assert.False(t, IsValidAccessLevel("admin"))
	assert.False(t, IsValidAccessLevel(""))
	assert.False(t, IsValidAccessLevel("RO"))
}

func TestMember_EmailLocalPart(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"alice@example.com", "alice"},
		{"bob.smith@corp.example.com", "bob.smith"},
		{"no-at-sign", "no-at-sign"},
		{"", ""},
	}

	for _, tt := range tests {
		m := &Member{Email: tt.email}
		assert.Equal(t, tt.want, m.EmailLocalPart(), "email %q", tt.email)
	}
}
