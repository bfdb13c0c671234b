package utils

import (
	"context"
	"image"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestParallelForEachPixel(t *testing.T) {
	var count int64
	ParallelForEachPixel(image.Point{37, 29}, func(x, y int) {
		atomic.AddInt64(&count, 1)
	})
	test.That(t, count, test.ShouldEqual, int64(37*29))
}

func TestRunInParallel(t *testing.T) {
	var ran int64
	err := RunInParallel(context.Background(), []SimpleFunc{
		func(ctx context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		},
		func(ctx context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ran, test.ShouldEqual, int64(2))
}

func TestRunInParallelError(t *testing.T) {
	boom := errors.New("boom")
	err := RunInParallel(context.Background(), []SimpleFunc{
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "boom")
}
