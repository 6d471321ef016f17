package cli

import (
	"sync"

	"github.com/rs/zerolog"

	"mote/internal/config"
	"mote/internal/stats"
)

// Context carries the settings and collaborators PersistentPreRunE
// resolves once, stashed on the command's context for subcommands to
// pull out via GetContext. Grounded on the teacher's CLIContext: build
// every leaf dependency up front, hand it down, close it once on the way
// out.
type Context struct {
	Settings     *config.Settings
	SettingsPath string
	Workdir      string
	Responsive   bool
	Logger       *zerolog.Logger

	statsOnce sync.Once
	statsErr  error
	statsPath string
	statsDB   *stats.Store
}

// NewContext builds a Context from resolved settings.
func NewContext(settings *config.Settings, settingsPath, workdir string, responsive bool, log *zerolog.Logger) *Context {
	return &Context{
		Settings:     settings,
		SettingsPath: settingsPath,
		Workdir:      workdir,
		Responsive:   responsive,
		Logger:       log,
		statsPath:    settings.Stats.Path,
	}
}

// Stats lazily opens the sqlite stats side index.
func (c *Context) Stats() (*stats.Store, error) {
	c.statsOnce.Do(func() {
		c.statsDB, c.statsErr = stats.Open(c.statsPath)
	})
	return c.statsDB, c.statsErr
}

// Close releases any collaborator Context opened lazily.
func (c *Context) Close() error {
	if c.statsDB != nil {
		return c.statsDB.Close()
	}
	return nil
}
