package utils

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

func TestValidateAppName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "tool", false},
		{"underscore", "to_gif_example", false},
		{"dotted", "app.v2", false},
		{"empty", "", true},
		{"hidden", ".staging", true},
		{"parent", "..", true},
		{"slash", "a/b", true},
		{"space", "my app", true},
		{"null byte", "a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAppName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrInvalidAppName))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOptionKey(t *testing.T) {
	assert.NoError(t, ValidateOptionKey("nc_url"))
	assert.NoError(t, ValidateOptionKey("APP_MODE"))
	assert.Error(t, ValidateOptionKey(""))
	assert.Error(t, ValidateOptionKey("1abc"))
	assert.Error(t, ValidateOptionKey("a b"))
}

func TestKeyLockSerializesSameKey(t *testing.T) {
	kl := NewKeyLock()

	unlock := kl.Lock("tool")
	acquired := make(chan struct{})
	go func() {
		u := kl.Lock("tool")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	<-acquired

	assert.Eventually(t, func() bool { return kl.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestKeyLockIndependentKeys(t *testing.T) {
	kl := NewKeyLock()

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			unlock := kl.Lock(key)
			defer unlock()
			time.Sleep(10 * time.Millisecond)
		}(key)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent keys blocked each other")
	}
	assert.Equal(t, 0, kl.Len())
}
