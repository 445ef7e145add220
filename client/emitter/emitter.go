package emitter

import (
	"time"

	"github.com/robertodauria/speedtest/pkg/speedtest/results"
	"github.com/robertodauria/speedtest/pkg/speedtest/spec"
	"go.uber.org/zap"
)

type Emitter interface {
	OnPing(rtt time.Duration, serverTime time.Time)
	OnStart(spec.SubtestKind, int64)
	OnDownload(*results.Download)
	OnUpload(*results.Upload)
	OnError(spec.SubtestKind, error)
	OnComplete(spec.SubtestKind)
}

type LogEmitter struct{}

func (e *LogEmitter) OnPing(rtt time.Duration, serverTime time.Time) {
	zap.L().Sugar().Infof("ping: rtt %v, server time %s", rtt, serverTime.UTC().Format(time.RFC3339Nano))
}

func (e *LogEmitter) OnStart(kind spec.SubtestKind, size int64) {
	zap.L().Sugar().Infof("%s: starting (%d bytes)", kind, size)
}

func (e *LogEmitter) OnDownload(r *results.Download) {
	zap.L().Sugar().Infof("download: %d/%d bytes in %.3fs, throughput: %f Mb/s",
		r.BytesReceived, r.ExpectedBytes, r.DurationSeconds, r.DownloadMbps)
}

func (e *LogEmitter) OnUpload(r *results.Upload) {
	zap.L().Sugar().Infof("upload: %d bytes in %.3fs, throughput: %f Mb/s",
		r.BytesReceived, r.DurationSeconds, r.UploadMbps)
}

func (e *LogEmitter) OnError(kind spec.SubtestKind, err error) {
	zap.L().Sugar().Errorf("%s: error (%v)", kind, err)
}

func (e *LogEmitter) OnComplete(kind spec.SubtestKind) {
	zap.L().Sugar().Infof("%s: completed", kind)
}
