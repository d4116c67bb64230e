package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	defaultSampleRate = 16000
	pcmChannels       = 1
	pcmBitDepth       = 16
)

// Archiver accumulates raw chunk audio per session and encodes the
// concatenated recording when the session ends. Many sessions can be open at
// once; each gets its own raw file keyed by session id.
type Archiver struct {
	audioDir   string
	sampleRate int

	mu   sync.Mutex
	open map[string]*os.File

	encode func(rawPath, sessionID string) (string, error)
}

func NewArchiver(audioDir string) *Archiver {
	if audioDir == "" {
		audioDir = filepath.Join("data", "audio")
	}

	a := &Archiver{
		audioDir:   audioDir,
		sampleRate: defaultSampleRate,
		open:       make(map[string]*os.File),
	}
	a.encode = a.defaultEncode
	return a
}

func (a *Archiver) SetSampleRate(sampleRate int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sampleRate > 0 {
		a.sampleRate = sampleRate
	}
}

// StartSession opens the raw capture file for a new session. Starting a
// session that is already open truncates its previous capture.
func (a *Archiver) StartSession(sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.audioDir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	if f, ok := a.open[sessionID]; ok {
		_ = f.Close()
	}

	rawFile, err := os.OpenFile(a.rawPath(sessionID), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open raw pcm file: %w", err)
	}

	a.open[sessionID] = rawFile
	return nil
}

// AppendChunk writes one chunk's raw audio to the session's capture file.
// Appending to a session that was never started is a no-op.
func (a *Archiver) AppendChunk(sessionID string, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rawFile, ok := a.open[sessionID]
	if !ok {
		return nil
	}

	if _, err := rawFile.Write(audio); err != nil {
		return fmt.Errorf("write raw pcm bytes: %w", err)
	}
	return nil
}

// EndSession closes the session's capture, encodes it and returns the final
// audio path. Ending a session that was never started returns an empty path.
func (a *Archiver) EndSession(sessionID string) (string, error) {
	a.mu.Lock()
	rawFile, ok := a.open[sessionID]
	delete(a.open, sessionID)
	a.mu.Unlock()

	if !ok {
		return "", nil
	}

	if err := rawFile.Close(); err != nil {
		return "", fmt.Errorf("close raw pcm file: %w", err)
	}

	rawPath := a.rawPath(sessionID)
	audioPath, err := a.encode(rawPath, sessionID)
	if err != nil {
		return "", err
	}

	_ = os.Remove(rawPath)
	return audioPath, nil
}

func (a *Archiver) rawPath(sessionID string) string {
	return filepath.Join(a.audioDir, sessionID+".pcm")
}

func (a *Archiver) defaultEncode(rawPath, sessionID string) (string, error) {
	a.mu.Lock()
	sampleRate := a.sampleRate
	a.mu.Unlock()
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	mp3Path := filepath.Join(a.audioDir, sessionID+".mp3")

	if err := encodeWithFFmpeg(rawPath, mp3Path, sampleRate); err == nil {
		return mp3Path, nil
	}

	if err := encodeWithLame(rawPath, mp3Path, sampleRate); err == nil {
		return mp3Path, nil
	}

	wavPath := filepath.Join(a.audioDir, sessionID+".wav")
	if err := pcmToWav(rawPath, wavPath, sampleRate); err != nil {
		return "", fmt.Errorf("encode wav fallback: %w", err)
	}

	return wavPath, nil
}

func encodeWithFFmpeg(rawPath, outputPath string, sampleRate int) error {
	cmd := exec.Command(
		"ffmpeg",
		"-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-i", rawPath,
		outputPath,
	)
	return cmd.Run()
}

func encodeWithLame(rawPath, outputPath string, sampleRate int) error {
	khz := float64(sampleRate) / 1000.0
	formatted := strconv.FormatFloat(khz, 'f', -1, 64)
	cmd := exec.Command(
		"lame",
		"-r",
		"-s", formatted,
		"--bitwidth", "16",
		"-m", "m",
		rawPath,
		outputPath,
	)
	return cmd.Run()
}

func pcmToWav(rawPath, wavPath string, sampleRate int) error {
	pcmData, err := os.ReadFile(rawPath)
	if err != nil {
		return fmt.Errorf("read raw pcm data: %w", err)
	}

	out, err := os.OpenFile(wavPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open wav output: %w", err)
	}
	defer out.Close()

	header, err := wavHeader(len(pcmData), sampleRate, pcmChannels, pcmBitDepth)
	if err != nil {
		return fmt.Errorf("build wav header: %w", err)
	}

	if _, err := out.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := out.Write(pcmData); err != nil {
		return fmt.Errorf("write wav payload: %w", err)
	}

	return nil
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8
	chunkSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, 44))
	if _, err := buf.WriteString("RIFF"); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(chunkSize)); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("WAVE"); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("fmt "); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(16)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(1)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(channels)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(byteRate)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(blockAlign)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(bitDepth)); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("data"); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
