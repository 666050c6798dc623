// Package mediainfo probes media files with ffprobe.
package mediainfo

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Info is the probe result for one media file.
type Info struct {
	Width           int
	Height          int
	VideoCodec      string
	AudioCodec      string
	AudioChannels   int
	DurationSeconds float64
}

// Prober probes files for stream information.
type Prober interface {
	Probe(ctx context.Context, path string) (*Info, error)
}

// FFProbe shells out to the ffprobe binary.
type FFProbe struct {
	Binary string
}

// NewFFProbe creates a prober using the ffprobe on PATH.
func NewFFProbe() *FFProbe {
	return &FFProbe{Binary: "ffprobe"}
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Channels  int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe and extracts the primary video and audio streams.
func (f *FFProbe) Probe(ctx context.Context, path string) (*Info, error) {
	binary := f.Binary
	if binary == "" {
		binary = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("invalid ffprobe output: %w", err)
	}

	info := &Info{}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = stream.CodecName
				info.Width = stream.Width
				info.Height = stream.Height
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
				info.AudioChannels = stream.Channels
			}
		}
	}

	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.DurationSeconds = d
		}
	}

	return info, nil
}
