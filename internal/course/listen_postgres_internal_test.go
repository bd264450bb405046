package course

import (
	"encoding/json"
	"testing"
)

func TestChangePayload_Ref(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantKind   EntityKind
		wantID     int64
		wantParent *Ref
	}{
		{"instance", `{"kind":"instance","id":1}`, KindInstance, 1, nil},
		{"module", `{"kind":"module","id":10,"parent_kind":"instance","parent_id":1}`, KindModule, 10, &Ref{Kind: KindInstance, ID: 1}},
		{"item", `{"kind":"item","id":100,"parent_kind":"module","parent_id":10}`, KindItem, 100, &Ref{Kind: KindModule, ID: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p changePayload
			if err := json.Unmarshal([]byte(tt.payload), &p); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			ref := p.ref()
			if ref.Kind != tt.wantKind || ref.ID != tt.wantID {
				t.Errorf("ref = %s, want %s:%d", ref, tt.wantKind, tt.wantID)
			}
			switch {
			case tt.wantParent == nil && ref.Parent != nil:
				t.Errorf("Parent = %s, want none", ref.Parent)
			case tt.wantParent != nil && (ref.Parent == nil || *ref.Parent != *tt.wantParent):
				t.Errorf("Parent = %v, want %s", ref.Parent, tt.wantParent)
			}
		})
	}
}

func TestChangePayload_UnknownKind(t *testing.T) {
	var p changePayload
	if err := json.Unmarshal([]byte(`{"kind":"quiz","id":1}`), &p); err == nil {
		t.Fatal("Unmarshal() should reject an unknown kind")
	}
}
