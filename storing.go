package megastep

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// DefaultCheckpointInterval is the minimum time between
// checkpoints used by a Checkpointer whose Interval is 0.
const DefaultCheckpointInterval = time.Minute

// A Store saves named objects to checkpoint files in a
// directory.
type Store struct {
	Dir string
}

// Path returns the path of the checkpoint with the given
// tag.
func (s *Store) Path(tag string) string {
	return filepath.Join(s.Dir, tag+".ckpt")
}

// Save writes a checkpoint, replacing any previous
// checkpoint with the same tag.
//
// The checkpoint is written to a temporary file and then
// renamed, so that readers never see a partial file.
func (s *Store) Save(tag string, objs map[string]serializer.Serializer) (err error) {
	defer essentials.AddCtxTo("save checkpoint "+tag, &err)

	var names []string
	for name := range objs {
		names = append(names, name)
	}
	sort.Strings(names)
	var list []serializer.Serializer
	for _, name := range names {
		list = append(list, serializer.String(name), objs[name])
	}
	data, err := serializer.SerializeSlice(list)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return err
	}
	tmpPath := filepath.Join(s.Dir, tag+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.Path(tag))
}

// Load reads the checkpoint with the given tag.
//
// Every object's type must have a registered
// deserializer.
func (s *Store) Load(tag string) (objs map[string]serializer.Serializer, err error) {
	defer essentials.AddCtxTo("load checkpoint "+tag, &err)
	data, err := os.ReadFile(s.Path(tag))
	if err != nil {
		return nil, err
	}
	list, err := serializer.DeserializeSlice(data)
	if err != nil {
		return nil, err
	}
	if len(list)%2 != 0 {
		return nil, errors.New("odd number of entries")
	}
	objs = map[string]serializer.Serializer{}
	for i := 0; i < len(list); i += 2 {
		name, ok := list[i].(serializer.String)
		if !ok {
			return nil, fmt.Errorf("entry %d: expected name but got %T", i/2, list[i])
		}
		objs[string(name)] = list[i+1]
	}
	return objs, nil
}

// A Checkpointer saves checkpoints no more often than a
// fixed interval.
type Checkpointer struct {
	Store *Store
	Tag   string

	// Interval is the minimum time between save attempts.
	//
	// If 0, DefaultCheckpointInterval is used.
	Interval time.Duration

	// Objects produces the objects to save.
	Objects func() (map[string]serializer.Serializer, error)

	// Now returns the current time.
	//
	// If nil, time.Now is used.
	Now func() time.Time

	// Logger, if non-nil, is notified of skipped and
	// failed saves.
	Logger *log.Logger

	lastAttempt time.Time
	attempted   bool
}

// Save writes a checkpoint unless the previous attempt
// was too recent.
//
// A failed attempt still counts toward the interval.
func (c *Checkpointer) Save() (saved bool, err error) {
	now := c.now()
	interval := c.Interval
	if interval == 0 {
		interval = DefaultCheckpointInterval
	}
	if c.attempted && now.Sub(c.lastAttempt) < interval {
		c.logf("skipping checkpoint (last attempt %s ago)", now.Sub(c.lastAttempt))
		return false, nil
	}
	c.attempted = true
	c.lastAttempt = now

	defer essentials.AddCtxTo("checkpoint", &err)
	objs, err := c.Objects()
	if err != nil {
		c.logf("checkpoint failed: %s", err)
		return false, err
	}
	if err := c.Store.Save(c.Tag, objs); err != nil {
		c.logf("checkpoint failed: %s", err)
		return false, err
	}
	return true, nil
}

func (c *Checkpointer) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Checkpointer) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}
