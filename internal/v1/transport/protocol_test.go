package transport

import "testing"

func TestIsPriorityMessage(t *testing.T) {
	cases := []struct {
		name string
		data string
		want bool
	}{
		{"room state", `{"type":"ROOM_STATE"}`, true},
		{"ack", `{"type":"ACK"}`, true},
		{"error", `{"type":"ERROR"}`, true},
		{"room created", `{"type":"ROOM_CREATED"}`, true},
		{"queue add", `{"type":"QUEUE_ADD"}`, false},
		{"cursor move", `{"type":"CURSOR_MOVE"}`, false},
		{"malformed", `not json`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isPriorityMessage([]byte(tc.data)); got != tc.want {
				t.Errorf("isPriorityMessage(%q) = %v, want %v", tc.data, got, tc.want)
			}
		})
	}
}
