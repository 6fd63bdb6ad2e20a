package newer

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigResolve(t *testing.T) {
	mapper := func(root string, s *Source) string { return root + "/x" }

	tests := []struct {
		name    string
		cfg     Config
		mode    Mode
		wantErr bool
	}{
		{"dest only", Config{Dest: "out"}, DirectoryMapped, false},
		{"dest and ext", Config{Dest: "out", Ext: ".js"}, ExtensionMapped, false},
		{"map only", Config{Map: mapper}, CustomMapped, false},
		{"map wins over ext", Config{Dest: "out", Ext: ".js", Map: mapper}, CustomMapped, false},
		{"empty", Config{}, 0, true},
		{"ext only", Config{Ext: ".js"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.cfg.resolve()
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if d.mode != tt.mode {
				t.Errorf("mode = %v, want %v", d.mode, tt.mode)
			}
		})
	}
}

func TestDestinationPathFor(t *testing.T) {
	nested := src(filepath.Join("sub", "app.ts"), at(1))

	tests := []struct {
		name string
		cfg  Config
		src  *Source
		want string
	}{
		{"mirror", Config{Dest: "out"}, nested, filepath.Join("out", "sub", "app.ts")},
		{"extension", Config{Dest: "out", Ext: ".js"}, nested, filepath.Join("out", "sub", "app.js")},
		{"extension on extensionless", Config{Dest: "out", Ext: ".o"}, src("Makefile", at(1)), filepath.Join("out", "Makefile.o")},
		{"custom", Config{Dest: "out", Map: func(root string, s *Source) string {
			return root + "/bundle/" + strings.ToUpper(filepath.Base(s.Relative))
		}}, nested, "out/bundle/APP.TS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.cfg.resolve()
			if err != nil {
				t.Fatal(err)
			}
			if got := d.pathFor(tt.src); got != tt.want {
				t.Errorf("pathFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigFromMap(t *testing.T) {
	var fn MapFunc = func(root string, s *Source) string { return "m" }
	plain := func(root string, s *Source) string { return "p" }

	t.Run("valid", func(t *testing.T) {
		cfg, err := ConfigFromMap(map[string]any{"dest": "out", "ext": ".css", "unknown": 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Dest != "out" || cfg.Ext != ".css" || cfg.Map != nil {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("map func types", func(t *testing.T) {
		for _, m := range []any{fn, plain} {
			cfg, err := ConfigFromMap(map[string]any{"map": m})
			if err != nil {
				t.Fatalf("unexpected error for %T: %v", m, err)
			}
			if cfg.Map == nil {
				t.Errorf("map not set for %T", m)
			}
		}
	})

	failures := []struct {
		name   string
		raw    map[string]any
		reason string
	}{
		{"nil", nil, "requires a dest string or options object"},
		{"empty", map[string]any{}, "requires either dest or map or both"},
		{"ext only", map[string]any{"ext": ".js"}, "requires either dest or map or both"},
		{"dest not string", map[string]any{"dest": 42}, "requires dest to be a string, got int"},
		{"ext not string", map[string]any{"dest": "out", "ext": true}, "requires ext to be a string, got bool"},
		{"map not func", map[string]any{"dest": "out", "map": "x"}, "requires map to be a function, got string"},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConfigFromMap(tt.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error %q does not contain %q", err, tt.reason)
			}
		})
	}
}

func TestModeString(t *testing.T) {
	want := map[Mode]string{
		DirectoryMapped: "directory",
		SingleFile:      "single-file",
		ExtensionMapped: "extension",
		CustomMapped:    "custom",
		Mode(9):         "Mode(9)",
	}
	for m, s := range want {
		if m.String() != s {
			t.Errorf("%d.String() = %q, want %q", int(m), m.String(), s)
		}
	}
}

func TestSourceCheck(t *testing.T) {
	if err := src("a", at(1)).check(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	for _, s := range []*Source{nil, {Path: "/x"}, src("zero", time.Time{})} {
		err := s.check()
		if !errors.Is(err, ErrMissingMetadata) {
			t.Errorf("check(%v) = %v, want ErrMissingMetadata", s, err)
		}
		var fe *FileError
		if !errors.As(err, &fe) || fe.Op != "check" {
			t.Errorf("expected check FileError, got %v", err)
		}
	}
}
