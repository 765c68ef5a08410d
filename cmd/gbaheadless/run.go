package main

import (
	"fmt"
	"hash/crc32"
	"image/png"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arm7tdmi-core/gbacore/internal/system"
)

type runFlags struct {
	romPath            string
	biosPath           string
	frames             int
	outPNG             string
	scale              int
	expectCRC          string
	traceUnimplemented bool
	quiet              bool
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a BIOS and ROM and run a fixed number of frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeadless(f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.romPath, "rom", "", "path to the cartridge ROM image (required)")
	flags.StringVar(&f.biosPath, "bios", "", "path to the 16 KiB firmware image")
	flags.IntVar(&f.frames, "frames", 60, "number of frames to run")
	flags.StringVar(&f.outPNG, "outpng", "", "write the final framebuffer to a PNG at this path")
	flags.IntVar(&f.scale, "scale", 1, "integer upscale factor applied to --outpng output")
	flags.StringVar(&f.expectCRC, "expect", "", "assert the final framebuffer's CRC32 (hex) and exit nonzero on mismatch")
	flags.BoolVar(&f.traceUnimplemented, "trace-unimplemented", false, "log every UND exception taken (unimplemented/undecodable opcode)")
	flags.BoolVar(&f.quiet, "quiet", false, "discard lifecycle logging")
	_ = cmd.MarkFlagRequired("rom")

	return cmd
}

func runHeadless(f *runFlags) error {
	var logger *zap.SugaredLogger
	if f.quiet {
		logger = zap.NewNop().Sugar()
	} else {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer zl.Sync() //nolint:errcheck
		logger = zl.Sugar()
	}

	rom, err := os.ReadFile(f.romPath)
	if err != nil {
		return fmt.Errorf("read rom: %w", err)
	}

	m, err := system.New(rom, logger)
	if err != nil {
		return fmt.Errorf("initialize core: %w", err)
	}

	if f.biosPath != "" {
		bios, err := os.ReadFile(f.biosPath)
		if err != nil {
			return fmt.Errorf("read bios: %w", err)
		}
		m.LoadBIOS(bios)
	}

	if f.traceUnimplemented {
		m.TraceUnimplemented()
	}

	frames := f.frames
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		m.RunFrame()
	}
	elapsed := time.Since(start)

	fb := m.Framebuffer()
	raw := make([]byte, len(fb)*4)
	for i, px := range fb {
		o := i * 4
		raw[o+0] = byte(px >> 24)
		raw[o+1] = byte(px >> 16)
		raw[o+2] = byte(px >> 8)
		raw[o+3] = byte(px)
	}
	crc := crc32.ChecksumIEEE(raw)
	logger.Infow("run complete",
		"frames", frames, "elapsed", elapsed.Truncate(time.Millisecond),
		"fps", float64(frames)/elapsed.Seconds(), "framebuffer_crc32", fmt.Sprintf("%08x", crc))

	if f.outPNG != "" {
		img := m.ScaledImage(f.scale)
		out, err := os.Create(f.outPNG)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.outPNG, err)
		}
		defer out.Close()
		if err := png.Encode(out, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		logger.Infow("wrote framebuffer PNG", "path", f.outPNG)
	}

	if f.expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(f.expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("framebuffer checksum mismatch: got %s, want %s", got, want)
		}
	}

	return nil
}
