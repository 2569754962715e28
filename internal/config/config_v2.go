package config

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
)

const overridesEnv = "CATEDRAL_FLAG_OVERRIDES"

var (
	configV2Path string
	flagMapMu    sync.RWMutex
	allFlags     map[string]any = make(map[string]any)
)

type configFlag interface {
	getPtr() any
	sneakUpdate(newVal any) error
	override(raw string) error
}

type Flag[T any] interface {
	Value() T
	Update(T)
	InternalName() string
	HumanName() string
	Secret() bool
}

type flag[T any] struct {
	mu        sync.RWMutex
	name      string
	val       T
	humanName string
	secret    bool
}

func (f *flag[T]) Value() T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.val
}

func (f *flag[T]) InternalName() string {
	return f.name
}

func (f *flag[T]) HumanName() string {
	return f.humanName
}

func (f *flag[T]) Secret() bool {
	return f.secret
}

// MarshalJSON is used by the admin API. Secret flags only report whether they are set.
func (f *flag[T]) MarshalJSON() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var val any = f.val
	if f.secret {
		val = !reflect.ValueOf(f.val).IsZero()
	}
	return json.Marshal(&struct {
		InternalName string `json:"internal_name"`
		HumanName    string `json:"human_name"`
		Secret       bool   `json:"secret,omitempty"`
		Value        any    `json:"value"`
	}{
		InternalName: f.name,
		HumanName:    f.humanName,
		Secret:       f.secret,
		Value:        val,
	})
}

func (f *flag[T]) Update(newVal T) {
	f.mu.Lock()
	f.val = newVal
	f.mu.Unlock()

	if configV2Path == "" {
		return
	}
	if err := SaveConfigV2(context.Background()); err != nil {
		slog.WarnContext(context.Background(), "Couldn't save flag", slog.Any("err", err))
	}
}

func (f *flag[T]) getPtr() any {
	return &f.val
}

func (f *flag[T]) sneakUpdate(newVal any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch v := newVal.(type) {
	case json.RawMessage:
		if err := json.Unmarshal(v, &f.val); err != nil {
			return fmt.Errorf("invalid key, flag expected %T", f.val)
		}
		return nil
	default:
		return fmt.Errorf("expected json.RawMessage, got %T", newVal)
	}
}

// override applies an environment override without persisting it to the flags file.
func (f *flag[T]) override(raw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Strings are special since overrides usually come without quotes
	if s, ok := any(&f.val).(*string); ok {
		*s = raw
		return nil
	}
	return json.Unmarshal([]byte(raw), &f.val)
}

func GenFlag[T any](name string, defaultVal T, readableName string) Flag[T] {
	flagMapMu.Lock()
	defer flagMapMu.Unlock()
	f := &flag[T]{name: name, val: defaultVal, humanName: readableName}
	allFlags[name] = f
	return f
}

// GenSecretFlag declares a credential-like string flag that is never echoed back by the admin API.
func GenSecretFlag(name string, readableName string) Flag[string] {
	flagMapMu.Lock()
	defer flagMapMu.Unlock()
	f := &flag[string]{name: name, humanName: readableName, secret: true}
	allFlags[name] = f
	return f
}

func GetFlagVal[T any](name string) (T, bool) {
	flagMapMu.RLock()
	defer flagMapMu.RUnlock()
	flg, ok := allFlags[name]
	if !ok {
		return *new(T), false
	}
	if v, ok := flg.(*flag[T]); ok {
		return v.Value(), true
	}
	return *new(T), false
}

func GetFlag[T any](name string) (Flag[T], bool) {
	flagMapMu.RLock()
	defer flagMapMu.RUnlock()
	flg, ok := allFlags[name]
	if !ok {
		return nil, false
	}
	v, ok := flg.(*flag[T])
	return v, ok
}

func GetFlags[T any]() []Flag[T] {
	flagMapMu.RLock()
	defer flagMapMu.RUnlock()
	var flags []Flag[T]
	for _, flg := range allFlags {
		flag, ok := flg.(*flag[T])
		if ok {
			flags = append(flags, flag)
		}
	}
	slices.SortFunc(flags, func(a, b Flag[T]) int {
		return cmp.Compare(a.InternalName(), b.InternalName())
	})
	return flags
}

func LoadConfigV2(ctx context.Context, skipUnknown bool) error {
	flagMapMu.RLock()
	defer flagMapMu.RUnlock()
	if configV2Path == "" {
		return errors.New("invalid config path")
	}
	f, err := os.OpenFile(configV2Path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	var data = make(map[string]json.RawMessage)
	if err := json.NewDecoder(f).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	for key, confVal := range data {
		val, ok := allFlags[key]
		if !ok {
			if !skipUnknown {
				slog.WarnContext(ctx, "Unknown config key", slog.String("key", key))
			}
			continue
		}
		if v, ok := val.(configFlag); ok {
			if err := v.sneakUpdate(confVal); err != nil {
				slog.WarnContext(ctx, "Couldn't update key", slog.String("key", key), slog.Any("err", err))
			}
		}
	}

	applyOverrides(ctx, os.Getenv(overridesEnv))
	return nil
}

// applyOverrides parses key=value pairs separated by commas. Caller must hold flagMapMu.
func applyOverrides(ctx context.Context, overrides string) {
	for _, override := range strings.Split(overrides, ",") {
		if override == "" {
			continue
		}
		key, val, found := strings.Cut(override, "=")
		if !found {
			slog.WarnContext(ctx, "Invalid override", slog.String("override", override))
			continue
		}
		flg, ok := allFlags[key]
		if !ok {
			slog.WarnContext(ctx, "Could not find flag", slog.String("name", key))
			continue
		}
		f, ok := flg.(configFlag)
		if !ok {
			slog.WarnContext(ctx, "Unknown flag type", slog.String("name", key))
			continue
		}
		if err := f.override(val); err != nil {
			slog.WarnContext(ctx, "Invalid flag override", slog.Any("err", err), slog.String("key", key))
		}
	}
}

func SaveConfigV2(ctx context.Context) error {
	if configV2Path == "" {
		return errors.New("invalid config path")
	}
	if err := os.MkdirAll(filepath.Dir(configV2Path), 0755); err != nil {
		return err
	}
	flagMapMu.RLock()
	defer flagMapMu.RUnlock()

	file, err := os.Create(configV2Path)
	if err != nil {
		return err
	}

	var data = make(map[string]any)
	for key, flg := range allFlags {
		switch v := flg.(type) {
		case configFlag:
			data[key] = v.getPtr()
		default:
			slog.WarnContext(ctx, "Unknown flag type", slog.Any("type", reflect.TypeOf(v)))
		}
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "\t")
	if err := enc.Encode(data); err != nil {
		file.Close() // We don't care if it errors out, the JSON is errored
		return err
	}

	return file.Close()
}

func SetConfigV2Path(path string) {
	configV2Path = path
}
