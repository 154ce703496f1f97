// Package executor wires a Job to the Model Cache and the Provider strip,
// implementing the per-job steps spec §4.1's worker loop describes:
// resolve model, decode/preprocess/predict/postprocess, report outcome.
package executor

import (
	"context"
	"fmt"

	"github.com/nexuscore/inference-core/internal/corerr"
	"github.com/nexuscore/inference-core/internal/job"
	"github.com/nexuscore/inference-core/internal/modelcache"
	"github.com/nexuscore/inference-core/internal/provider"
	"github.com/nexuscore/inference-core/internal/scheduler"
)

// ModelInfo is what a ConfigResolver must produce for a model_ref before it
// can be loaded.
type ModelInfo struct {
	Framework provider.Framework
	Path      string
	Metadata  map[string]interface{}
}

// ConfigResolver maps a job's opaque model_ref to loadable model info.
type ConfigResolver func(modelRef string) (ModelInfo, error)

// New builds the scheduler.Executor every worker goroutine runs.
func New(cache *modelcache.Cache, providers *provider.Registry, resolve ConfigResolver) scheduler.Executor {
	return func(ctx context.Context, j *job.Job) (interface{}, error) {
		info, err := resolve(j.ModelRef)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", corerr.ErrNotFound, err)
		}

		prov, err := providers.Get(info.Framework)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", corerr.ErrProviderError, err)
		}

		entry, release, err := cache.Get(ctx, j.ModelRef, info.Framework, func(ctx context.Context) (provider.Handle, int64, error) {
			handle, loadErr := prov.Load(ctx, info.Path, info.Metadata)
			if loadErr != nil {
				return nil, 0, loadErr
			}
			return handle, handle.SizeBytes(), nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s", corerr.ErrModelLoadFailed, err)
		}
		defer release()

		params := paramsFromJob(j)
		result, err := entry.Handle.Predict(ctx, j.Payload, params)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", corerr.ErrProviderError, err)
		}
		return result, nil
	}
}

func paramsFromJob(j *job.Job) provider.Params {
	p := provider.DefaultParams()
	if j.Params == nil {
		return p
	}
	if v, ok := j.Params["conf_threshold"].(float64); ok {
		p.ConfThreshold = v
	}
	if v, ok := j.Params["iou_threshold"].(float64); ok {
		p.IOUThreshold = v
	}
	if v, ok := j.Params["max_det"].(int); ok {
		p.MaxDetections = v
	}
	if v, ok := j.Params["classes"].([]int); ok {
		p.Classes = v
	}
	return p
}
