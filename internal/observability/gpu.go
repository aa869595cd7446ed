package observability

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// GPUStat is one row of nvidia-smi output.
type GPUStat struct {
	Index          string
	Utilization    float64
	MemoryUsedMiB  float64
	MemoryTotalMiB float64
}

// GPUReader returns the current GPU statistics.
type GPUReader func(ctx context.Context) ([]GPUStat, error)

var ErrNoGPU = errors.New("nvidia-smi not available")

// NvidiaSMI queries nvidia-smi for utilization and memory.
func NvidiaSMI(ctx context.Context) ([]GPUStat, error) {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return nil, ErrNoGPU
	}
	out, err := exec.CommandContext(ctx, path,
		"--query-gpu=index,utilization.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil, err
	}
	return parseGPUStats(string(out))
}

func parseGPUStats(out string) ([]GPUStat, error) {
	var stats []GPUStat
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			return nil, errors.New("unexpected nvidia-smi output: " + line)
		}
		var vals [3]float64
		for i := 1; i < 4; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return nil, err
			}
			vals[i-1] = v
		}
		stats = append(stats, GPUStat{
			Index:          strings.TrimSpace(fields[0]),
			Utilization:    vals[0],
			MemoryUsedMiB:  vals[1],
			MemoryTotalMiB: vals[2],
		})
	}
	return stats, nil
}

// GPUPoller samples GPU statistics into gauges until its context ends.
type GPUPoller struct {
	Metrics  *Metrics
	Read     GPUReader
	Interval time.Duration
	Logger   *zap.Logger
}

func (p *GPUPoller) Run(ctx context.Context) error {
	if p.Read == nil {
		p.Read = NvidiaSMI
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p.Sample(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Sample(ctx)
		}
	}
}

// Sample records one reading. A failed read marks the GPU unavailable.
func (p *GPUPoller) Sample(ctx context.Context) {
	stats, err := p.Read(ctx)
	if err != nil || len(stats) == 0 {
		if err != nil && !errors.Is(err, ErrNoGPU) {
			p.logger().Debug("gpu stats unavailable", zap.Error(err))
		}
		p.Metrics.GPUAvailable.Record(ctx, 0)
		return
	}
	p.Metrics.GPUAvailable.Record(ctx, 1)
	for _, s := range stats {
		attrs := metric.WithAttributes(attribute.String("gpu", s.Index))
		p.Metrics.GPUUtilization.Record(ctx, s.Utilization, attrs)
		p.Metrics.GPUMemoryUsed.Record(ctx, s.MemoryUsedMiB, attrs)
		p.Metrics.GPUMemoryTotal.Record(ctx, s.MemoryTotalMiB, attrs)
	}
}

func (p *GPUPoller) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
