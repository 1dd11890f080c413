package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type fsnotifyWatcher struct {
	log *zap.Logger
}

func (w *fsnotifyWatcher) WaitForArrival(ctx context.Context, dir, name string) error {
	if err := precheck(ctx, name); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: fsnotify: %w", ErrWatchInit, err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("%w: watch %s: %w", ErrWatchInit, dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ErrCancelled
		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("fsnotify: event stream closed")
			}
			w.log.Debug("watch event", zap.String("name", event.Name), zap.Stringer("op", event.Op))
			if event.Has(fsnotify.Create) && filepath.Base(event.Name) == name {
				return nil
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("fsnotify: error stream closed")
			}
			return fmt.Errorf("fsnotify: %w", err)
		}
	}
}
