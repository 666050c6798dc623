package dvr

import (
	"fmt"
	"strings"

	"github.com/ohathar/sportarr/internal/mediainfo"
)

// BuildSyntheticTitle renders a DVR capture as a canonical scene title so the
// scorer treats it exactly like an indexer release:
// {EventTitle}.{Year}.{Resolution}.HDTV.{VideoCodec}.{AudioCodec}.{Channels}-DVR
func BuildSyntheticTitle(eventTitle string, year int, info *mediainfo.Info) string {
	parts := []string{strings.TrimSpace(eventTitle)}

	if year > 0 {
		parts = append(parts, fmt.Sprintf("%d", year))
	}

	if res := resolutionLabel(info); res != "" {
		parts = append(parts, res)
	}

	parts = append(parts, "HDTV")

	if codec := videoCodecLabel(info); codec != "" {
		parts = append(parts, codec)
	}
	if audio := audioCodecLabel(info); audio != "" {
		parts = append(parts, audio)
	}
	if channels := channelsLabel(info); channels != "" {
		parts = append(parts, channels)
	}

	return strings.Join(parts, ".") + "-DVR"
}

func resolutionLabel(info *mediainfo.Info) string {
	if info == nil || info.Height <= 0 {
		return ""
	}
	switch {
	case info.Height >= 2000:
		return "2160p"
	case info.Height >= 1000:
		return "1080p"
	case info.Height >= 700:
		return "720p"
	case info.Height >= 570:
		return "576p"
	case info.Height >= 470:
		return "480p"
	default:
		return "360p"
	}
}

func videoCodecLabel(info *mediainfo.Info) string {
	if info == nil {
		return ""
	}
	switch strings.ToLower(info.VideoCodec) {
	case "h264", "avc":
		return "x264"
	case "hevc", "h265":
		return "x265"
	case "":
		return ""
	default:
		return strings.ToUpper(info.VideoCodec)
	}
}

func audioCodecLabel(info *mediainfo.Info) string {
	if info == nil {
		return ""
	}
	switch strings.ToLower(info.AudioCodec) {
	case "aac":
		return "AAC"
	case "ac3":
		return "DD"
	case "eac3":
		return "DDP"
	case "mp2", "mp3":
		return "MP3"
	case "":
		return ""
	default:
		return strings.ToUpper(info.AudioCodec)
	}
}

func channelsLabel(info *mediainfo.Info) string {
	if info == nil {
		return ""
	}
	switch info.AudioChannels {
	case 1:
		return "1.0"
	case 2:
		return "2.0"
	case 6:
		return "5.1"
	case 8:
		return "7.1"
	default:
		return ""
	}
}
