package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
	gossh "golang.org/x/crypto/ssh"
)

// Initialize writes a default configuration, a host key and the data
// directories into dir. Existing files are left alone.
func Initialize(dir string, log *slog.Logger) (*Configuration, error) {
	return InitializeFs(afero.NewBasePathFs(afero.NewOsFs(), dir), log.With("dir", dir))
}

// InitializeFs is Initialize over an arbitrary filesystem.
func InitializeFs(fsys afero.Fs, log *slog.Logger) (*Configuration, error) {
	for _, d := range []string{LogsDirName, StateDirName} {
		log.Info("creating directory", "name", d)
		if err := fsys.MkdirAll(d, 0700); err != nil {
			return nil, err
		}
	}

	if err := writeIfMissing(fsys, log, ConfigurationName, func() ([]byte, error) {
		return defaultConfigData, nil
	}); err != nil {
		return nil, err
	}

	if err := writeIfMissing(fsys, log, PrivateKeyName, newHostKey); err != nil {
		return nil, err
	}

	return LoadFs(fsys)
}

func writeIfMissing(fsys afero.Fs, log *slog.Logger, name string, contents func() ([]byte, error)) error {
	_, err := fsys.Stat(name)
	switch {
	case err == nil:
		log.Info("keeping existing file", "name", name)
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	data, err := contents()
	if err != nil {
		return err
	}
	log.Info("writing file", "name", name)
	if dir := filepath.Dir(name); dir != "." {
		if err := fsys.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return afero.WriteFile(fsys, name, data, 0600)
}

// newHostKey generates an ed25519 key in OpenSSH PEM format.
func newHostKey() ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	block, err := gossh.MarshalPrivateKey(priv, "npcsh host key")
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(block), nil
}
