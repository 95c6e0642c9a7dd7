/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	stopped  bool
	order    *[]string
	name     string
}

func (f *fakeService) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}

	<-ctx.Done()

	return nil
}

func (f *fakeService) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true

	if f.order != nil {
		*f.order = append(*f.order, f.name)
	}

	return f.stopErr
}

func (f *fakeService) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.stopped
}

func TestRunServer_ContextCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()

	var order []string

	first := &fakeService{name: "first", order: &order}
	second := &fakeService{name: "second", order: &order}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- RunServer(ctx, &ServerOptions{
			ServiceName: "test",
			Services:    []Service{first, second},
			Logger:      logger,
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunServer did not return")
	}

	assert.Equal(t, []string{"second", "first"}, order)
}

func TestRunServer_ServiceFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	failing := &fakeService{startErr: errors.New("bind: address in use")}
	healthy := &fakeService{}

	err := RunServer(context.Background(), &ServerOptions{
		ServiceName: "test",
		Services:    []Service{healthy, failing},
		Logger:      logger,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.True(t, healthy.wasStopped())
}

func TestRunServer_StopError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	svc := &fakeService{stopErr: errors.New("flush failed")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunServer(ctx, &ServerOptions{Services: []Service{svc}, Logger: logger})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
}
