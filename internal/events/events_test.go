package events

import (
	"errors"
	"reflect"
	"testing"

	"github.com/homebus/homebus/internal/node"
)

func TestNewSystemEvent(t *testing.T) {
	t.Run("missing type", func(t *testing.T) {
		if _, err := NewSystemEvent("n1", 0, "exec"); !errors.Is(err, ErrMissingType) {
			t.Fatalf("expected ErrMissingType, got %v", err)
		}
	})

	t.Run("empty node falls back", func(t *testing.T) {
		e, err := NewSystemEvent("", SystemStarted, "")
		if err != nil {
			t.Fatal(err)
		}
		if e.Node != node.Missing {
			t.Errorf("expected %q, got %q", node.Missing, e.Node)
		}
	})

	t.Run("fields", func(t *testing.T) {
		e, err := NewSystemEvent("kitchen", BindingAdded, "exec")
		if err != nil {
			t.Fatal(err)
		}
		if e.Type != BindingAdded || e.Node != "kitchen" || e.Service != "exec" {
			t.Errorf("unexpected event %v", e)
		}
		if e.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
	})
}

func TestBindingStatusEvent(t *testing.T) {
	tests := []struct {
		status BindingStatus
		typ    SystemEventType
	}{
		{StatusNew, BindingAdded},
		{StatusPropertiesLoaded, BindingPropertiesLoaded},
		{StatusItemsLoaded, BindingItemsLoaded},
		{StatusRemoved, BindingRemoved},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			e, err := NewBindingStatusEvent("n1", "exec", tt.status)
			if err != nil {
				t.Fatal(err)
			}
			if e.Type != tt.typ {
				t.Errorf("expected %s, got %s", tt.typ, e.Type)
			}
			got, ok := e.Status()
			if !ok || got != tt.status {
				t.Errorf("Status() = %q, %v", got, ok)
			}
		})
	}

	if _, err := NewBindingStatusEvent("n1", "exec", BindingStatus("BOGUS")); !errors.Is(err, ErrMissingType) {
		t.Errorf("expected ErrMissingType for unknown status, got %v", err)
	}
}

func TestConfigurationEventValue(t *testing.T) {
	empty := ""
	blank := "  \t"
	set := "timeout=5000"

	tests := []struct {
		name   string
		value  *string
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{"empty", &empty, "", false},
		{"blank", &blank, "", false},
		{"set", &set, "timeout=5000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewConfigurationEvent("n1", ItemConfig, "exec", "Light", tt.value)
			if err != nil {
				t.Fatal(err)
			}
			got, ok := e.Value()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Value() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestConfigurationEventRejectsMissingType(t *testing.T) {
	if _, err := NewConfigurationEvent("n1", 0, "exec", "", nil); !errors.Is(err, ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
}

func TestConfigurationEventProperties(t *testing.T) {
	e := NewServiceConfigEvent("n1", "exec", "timeout=5000\nrefresh: 1000\n")
	props, err := e.Properties()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"timeout": "5000", "refresh": "1000"}
	if !reflect.DeepEqual(props, want) {
		t.Errorf("got %v, want %v", props, want)
	}

	removed := NewItemConfigRemovedEvent("n1", "exec", "Light")
	props, err = removed.Properties()
	if err != nil {
		t.Fatal(err)
	}
	if len(props) != 0 {
		t.Errorf("expected no properties for removed config, got %v", props)
	}
}

func TestParseProperties(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "separators",
			doc:  "a=1\nb : 2\nc 3\nd\n",
			want: map[string]string{"a": "1", "b": "2", "c": "3", "d": ""},
		},
		{
			name: "comments and blanks",
			doc:  "# comment\n! other\n\n  key = value with spaces  \n",
			want: map[string]string{"key": "value with spaces"},
		},
		{
			name: "continuation",
			doc:  "cmd=echo \\\n  hello\nnext=1",
			want: map[string]string{"cmd": "echo hello", "next": "1"},
		},
		{
			name: "value keeps separators",
			doc:  "url=http://host:8080/a=b",
			want: map[string]string{"url": "http://host:8080/a=b"},
		},
		{
			name: "last wins",
			doc:  "a=1\na=2",
			want: map[string]string{"a": "2"},
		},
		{
			name:    "missing key",
			doc:     "=value",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProperties(tt.doc)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatProperties(t *testing.T) {
	props := map[string]string{"b": "2", "a": "1"}
	got := FormatProperties(props, []string{"a", "b", "missing"})
	if got != "a=1\nb=2\n" {
		t.Errorf("unexpected output %q", got)
	}

	parsed, err := ParseProperties(got)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(parsed, props) {
		t.Errorf("got %v, want %v", parsed, props)
	}
}
