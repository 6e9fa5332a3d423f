package config

import (
	"fmt"
	"path/filepath"

	"github.com/josephlewis42/npcsh/core/store"
	"github.com/spf13/afero"
)

// OpenStore opens the configured session state store.
func (c *Configuration) OpenStore() (store.Store, error) {
	switch c.Store.Kind {
	case StoreBolt:
		base, ok := c.fs().(*afero.BasePathFs)
		if !ok {
			return nil, fmt.Errorf("%s store needs an on-disk configuration", StoreBolt)
		}
		path, err := base.RealPath(filepath.Join(StateDirName, StateDBName))
		if err != nil {
			return nil, err
		}
		return store.OpenBolt(path)
	default:
		return store.NewFsStore(c.fs(), StateDirName)
	}
}
