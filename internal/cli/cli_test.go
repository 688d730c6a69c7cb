package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/matzehuels/atlasbake/pkg/errors"
)

func TestRootCommand(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	want := []string{"bake", "inspect", "tree", "serve", "history", "cache", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Run("missing user file", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		s, err := loadDefaults("")
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if s.AtlasSize != nil || s.Margin != nil {
			t.Errorf("settings = %+v, want empty", s)
		}
	})

	t.Run("user file", func(t *testing.T) {
		base := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", base)
		dir := filepath.Join(base, appName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, configFile), []byte("margin = 6\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		s, err := loadDefaults("")
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if s.Margin == nil || *s.Margin != 6 {
			t.Errorf("Margin = %v, want 6", s.Margin)
		}
	})

	t.Run("explicit path must exist", func(t *testing.T) {
		_, err := loadDefaults(filepath.Join(t.TempDir(), "nope.toml"))
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("colour = 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := loadDefaults(path)
		if !errors.Is(err, errors.ErrCodeInvalidConfig) {
			t.Errorf("error = %v, want INVALID_CONFIG", err)
		}
	})
}

func TestBakeOverrides(t *testing.T) {
	newCmd := func() (*cobra.Command, *bakeFlags) {
		cmd := &cobra.Command{Use: "bake"}
		f := &bakeFlags{}
		f.bind(cmd)
		return cmd, f
	}

	t.Run("nothing set", func(t *testing.T) {
		cmd, f := newCmd()
		s := f.overrides(cmd)
		if s.AtlasSize != nil || s.Margin != nil || s.JoinDuplicates != nil || s.ScaleMargin != nil {
			t.Errorf("overrides = %+v, want empty", s)
		}
	})

	t.Run("explicit flags", func(t *testing.T) {
		cmd, f := newCmd()
		for name, value := range map[string]string{
			"atlas-size": "512",
			"margin":     "0",
			"no-join":    "true",
			"spread":     "0.5",
		} {
			if err := cmd.Flags().Set(name, value); err != nil {
				t.Fatal(err)
			}
		}
		s := f.overrides(cmd)
		if s.AtlasSize == nil || *s.AtlasSize != 512 {
			t.Errorf("AtlasSize = %v", s.AtlasSize)
		}
		if s.Margin == nil || *s.Margin != 0 {
			t.Errorf("Margin = %v, an explicit zero must override", s.Margin)
		}
		if s.JoinDuplicates == nil || *s.JoinDuplicates {
			t.Errorf("JoinDuplicates = %v, want false", s.JoinDuplicates)
		}
		if s.SkylineSpread == nil || *s.SkylineSpread != 0.5 {
			t.Errorf("SkylineSpread = %v", s.SkylineSpread)
		}
		if s.TextureFit != nil {
			t.Error("unset flag leaked into overrides")
		}
	})
}
