package app

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/PageDB/src"
	"github.com/Blackdeer1524/PageDB/src/bufferpool"
	"github.com/Blackdeer1524/PageDB/src/cfg"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/pkg/utils"
	"github.com/Blackdeer1524/PageDB/src/storage/disk"
)

// Options are shared by every command that opens database files.
type Options struct {
	ConfigPath string
	// Files lists database files as ID=PATH.
	Files []string

	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Log is built from the configured environment when nil.
	Log src.Logger
}

type base struct {
	cfg  cfg.RecoveryConfig
	fs   afero.Fs
	log  src.Logger
	disk *disk.Manager
	pool *bufferpool.Manager
}

func (b *base) init(opts Options) error {
	config, err := cfg.Load(opts.ConfigPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	b.cfg = config

	b.log = opts.Log
	if b.log == nil {
		b.log = newLogger(config.Environment)
	}

	b.fs = opts.Fs
	if b.fs == nil {
		b.fs = afero.NewOsFs()
	}

	files, err := ParseFiles(opts.Files, config.DataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no database files given")
	}

	b.disk = disk.New(b.fs, files)
	b.pool, err = bufferpool.New(config.PoolSize, bufferpool.NewLRUReplacer(), b.disk)
	if err != nil {
		return errors.Wrap(err, "buffer pool")
	}

	b.log.Debugw("opened database files", "files", len(files), "pool_size", config.PoolSize)
	return nil
}

// path resolves p against the data directory.
func (b *base) path(p string) string {
	return resolve(p, b.cfg.DataDir)
}

func (b *base) close() error {
	if b.log == nil {
		return nil
	}
	return b.log.Sync()
}

func newLogger(env cfg.Environment) src.Logger {
	if env == cfg.EnvDev {
		return utils.Must(zap.NewDevelopment()).Sugar()
	}
	return utils.Must(zap.NewProduction()).Sugar()
}

// ParseFiles turns ID=PATH arguments into a file map. Relative paths are
// taken from dataDir.
func ParseFiles(args []string, dataDir string) (map[common.FileID]string, error) {
	files := make(map[common.FileID]string, len(args))

	var err error
	for _, arg := range args {
		id, path, ok := strings.Cut(arg, "=")
		if !ok || path == "" {
			err = multierr.Append(err, errors.Errorf("file %q: want ID=PATH", arg))
			continue
		}

		n, parseErr := strconv.ParseUint(id, 10, 32)
		if parseErr != nil {
			err = multierr.Append(err, errors.Wrapf(parseErr, "file %q: bad id", arg))
			continue
		}

		fileID := common.FileID(n)
		if _, dup := files[fileID]; dup {
			err = multierr.Append(err, errors.Errorf("file id %d given twice", fileID))
			continue
		}
		files[fileID] = resolve(path, dataDir)
	}

	if err != nil {
		return nil, err
	}
	return files, nil
}

func resolve(p, dataDir string) string {
	if filepath.IsAbs(p) || dataDir == "" {
		return p
	}
	return filepath.Join(dataDir, p)
}
