package models

import "testing"

func TestFieldBoxValid(t *testing.T) {
	tests := []struct {
		name string
		f    Field
		want bool
	}{
		{"inside page", Field{X: 10, Y: 80, Width: 25, Height: 5}, true},
		{"fills page", Field{X: 0, Y: 0, Width: 100, Height: 100}, true},
		{"overflows right", Field{X: 90, Y: 10, Width: 20, Height: 5}, false},
		{"overflows bottom", Field{X: 10, Y: 98, Width: 10, Height: 5}, false},
		{"negative origin", Field{X: -1, Y: 10, Width: 10, Height: 5}, false},
		{"zero width", Field{X: 10, Y: 10, Width: 0, Height: 5}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.BoxValid(); got != tc.want {
				t.Errorf("BoxValid = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFieldFilled(t *testing.T) {
	if (&Field{}).Filled() {
		t.Error("empty field reported filled")
	}
	if !(&Field{Value: "Acme Corp"}).Filled() {
		t.Error("valued field reported empty")
	}
	if !(&Field{SignatureKey: "sig-keys/a.png"}).Filled() {
		t.Error("signature field reported empty")
	}
}

func TestEncodeEventData(t *testing.T) {
	m, err := EncodeEventData(DelegatedData{FromSignerID: "s1", FromName: "Ada", ToName: "Cam", ToEmail: "cam@example.com"})
	if err != nil {
		t.Fatalf("EncodeEventData: %v", err)
	}
	if m["fromSignerId"] != "s1" || m["toEmail"] != "cam@example.com" {
		t.Errorf("encoded = %v", m)
	}

	m, err = EncodeEventData(nil)
	if err != nil || m != nil {
		t.Errorf("nil payload = %v, %v", m, err)
	}
}
