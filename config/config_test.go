package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFile_Missing(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "missing.yaml")
	cfg, err := LoadFile(path)
	require.NoError(err)
	require.Equal("", cfg.Port)
	require.Zero(cfg.Timeout)
	require.Equal(path, cfg.File())
}

func TestLoadFile(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "plusdeck.yaml")
	require.NoError(os.WriteFile(path, []byte("port: /dev/ttyUSB1\ntimeout: 2s\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(err)
	require.Equal("/dev/ttyUSB1", cfg.Port)
	require.Equal(2*time.Second, cfg.Timeout)

	require.NoError(os.WriteFile(path, []byte("port: [\n"), 0o644))
	_, err = LoadFile(path)
	require.Error(err)

	require.NoError(os.WriteFile(path, []byte("timeout: -1s\n"), 0o644))
	_, err = LoadFile(path)
	require.Error(err)
}

func TestSaveRoundTrip(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "nested", "plusdeck.yaml")
	cfg, err := LoadFile(path)
	require.NoError(err)

	require.NoError(cfg.Set("port", "/dev/ttyS0"))
	require.NoError(cfg.Set("timeout", "1.5"))
	require.NoError(cfg.Save())

	loaded, err := LoadFile(path)
	require.NoError(err)
	require.Equal("/dev/ttyS0", loaded.Port)
	require.Equal(1500*time.Millisecond, loaded.Timeout)

	require.NoError(loaded.Unset("port"))
	require.NoError(loaded.Save())

	loaded, err = LoadFile(path)
	require.NoError(err)
	require.Equal("", loaded.Port)

	require.Error(Default().Save())
}

func TestGetSetUnset(t *testing.T) {
	require := require.New(t)

	cfg := Default()
	require.Equal([]string{"port", "timeout"}, Fields())

	require.NoError(cfg.Set("Port", "/dev/ttyACM0"))
	v, err := cfg.Get("port")
	require.NoError(err)
	require.Equal("/dev/ttyACM0", v)

	require.NoError(cfg.Set("timeout", "250ms"))
	v, err = cfg.Get("timeout")
	require.NoError(err)
	require.Equal("250ms", v)

	require.Error(cfg.Set("timeout", "soon"))
	require.Error(cfg.Set("timeout", "-3"))

	require.NoError(cfg.Unset("timeout"))
	v, err = cfg.Get("timeout")
	require.NoError(err)
	require.Equal("", v)

	_, err = cfg.Get("baud")
	require.ErrorIs(err, ErrUnknownField)
	require.ErrorIs(cfg.Set("baud", "9600"), ErrUnknownField)
	require.ErrorIs(cfg.Unset("baud"), ErrUnknownField)
}

func TestApplyEnv(t *testing.T) {
	require := require.New(t)

	t.Setenv(EnvPort, "/dev/ttyUSB9")
	t.Setenv(EnvTimeout, "5s")

	cfg := Default()
	require.NoError(cfg.ApplyEnv())
	require.Equal("/dev/ttyUSB9", cfg.Port)
	require.Equal(5*time.Second, cfg.Timeout)

	t.Setenv(EnvTimeout, "never")
	require.Error(cfg.ApplyEnv())
}

func TestFilePath(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := FilePath("", false)
	require.NoError(err)
	require.Equal(filepath.Join(dir, "plusdeck.yaml"), path)

	path, err = FilePath("", true)
	require.NoError(err)
	require.Equal(GlobalFile, path)

	path, err = FilePath("/tmp/custom.yaml", true)
	require.NoError(err)
	require.Equal("/tmp/custom.yaml", path)

	cfg, err := Load("", false)
	require.NoError(err)
	require.Equal(filepath.Join(dir, "plusdeck.yaml"), cfg.File())
}
