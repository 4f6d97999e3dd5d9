// Command explore opens a raster in a terminal session for panning,
// zooming and saving frames, without running the HTTP server.
package main

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cshum/vipsgen/vips"
	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"gigascene/internal/geom"
	"gigascene/internal/image_source"
	"gigascene/internal/logger"
	"gigascene/internal/scene"
)

var commands = []string{
	"origin", "move", "zoom", "size", "suspend", "resume",
	"invalidate", "tick", "info", "render", "help", "quit",
}

func main() {
	width := flag.Int("width", 1024, "viewport width in pixels")
	height := flag.Int("height", 768, "viewport height in pixels")
	marginPx := flag.Int("margin-px", image_source.DefaultMarginPx, "cache margin around the viewport")
	budgetMB := flag.Int64("budget-mb", 256, "cache pixel budget in MB")
	outDir := flag.String("out-dir", ".", "directory for saved frames")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <image>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	ext := strings.ToLower(filepath.Ext(path))
	if !image_source.SupportedExt(ext) {
		fmt.Fprintf(os.Stderr, "unsupported image format: %s\n", ext)
		os.Exit(2)
	}

	log, err := logger.NewConsole(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      256 * 1024 * 1024,
	})
	defer vips.Shutdown()

	src, err := image_source.Open(path, image_source.Options{
		MarginPx:    *marginPx,
		BudgetBytes: *budgetMB << 20,
	}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	sc := scene.New(src, log)
	size := src.Size()
	sc.SetSceneSize(size.X, size.Y)
	sc.Viewport().SetSize(*width, *height)
	sc.Initialize()
	sc.Start()
	defer sc.Close()

	fmt.Printf("%s  %dx%d scene units, %dx%d viewport\n", filepath.Base(path), size.X, size.Y, *width, *height)

	repl(sc, src, *outDir)
}

func repl(sc *scene.Scene, src *image_source.VipsSource, outDir string) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var matches []string
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, strings.ToLower(prefix)) {
				matches = append(matches, cmd)
			}
		}
		return matches
	})

	historyPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyPath = filepath.Join(home, ".gigascene_history")
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	frameN := 0
	for {
		input, err := line.Prompt("scene> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading input: %v\n", err)
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !dispatch(sc, src, outDir, &frameN, input) {
			break
		}
	}

	if historyPath != "" {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}
}

// dispatch runs one command and reports whether the loop should continue.
func dispatch(sc *scene.Scene, src *image_source.VipsSource, outDir string, frameN *int, input string) bool {
	vp := sc.Viewport()
	fields := strings.Fields(input)

	switch fields[0] {
	case "origin":
		x, y, ok := twoInts(fields[1:], "origin X Y")
		if !ok {
			return true
		}
		vp.SetOrigin(x, y)
		status(sc)
	case "move":
		dx, dy, ok := twoInts(fields[1:], "move DX DY")
		if !ok {
			return true
		}
		o := vp.Origin()
		vp.SetOrigin(o.X+dx, o.Y+dy)
		status(sc)
	case "zoom":
		if len(fields) != 2 && len(fields) != 4 {
			fmt.Println("usage: zoom FACTOR [FX FY]")
			return true
		}
		factor, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || factor <= 0 {
			fmt.Println("zoom factor must be a positive number")
			return true
		}
		size := vp.PhysicalSize()
		focus := geom.PointF{X: float64(size.X) / 2, Y: float64(size.Y) / 2}
		if len(fields) == 4 {
			fx, errX := strconv.ParseFloat(fields[2], 64)
			fy, errY := strconv.ParseFloat(fields[3], 64)
			if errX != nil || errY != nil {
				fmt.Println("usage: zoom FACTOR [FX FY]")
				return true
			}
			focus = geom.PointF{X: fx, Y: fy}
		}
		vp.ZoomAt(factor, focus)
		status(sc)
	case "size":
		w, h, ok := twoInts(fields[1:], "size W H")
		if !ok {
			return true
		}
		if w < 1 || h < 1 {
			fmt.Println("size must be positive")
			return true
		}
		vp.SetSize(w, h)
		status(sc)
	case "suspend":
		sc.SetSuspend(true)
		status(sc)
	case "resume":
		sc.SetSuspend(false)
		status(sc)
	case "invalidate":
		sc.Invalidate()
		status(sc)
	case "tick":
		sc.Draw(nil)
		status(sc)
	case "info":
		win := vp.Window()
		size := vp.PhysicalSize()
		fmt.Printf("window   %dx%d at (%d,%d)\n", win.Dx(), win.Dy(), win.Min.X, win.Min.Y)
		fmt.Printf("surface  %dx%d px\n", size.X, size.Y)
		fmt.Printf("zoom     %.4f scene units per pixel\n", vp.Zoom())
		fmt.Printf("cache    %s\n", sc.CacheState())
		fmt.Printf("frames   %d\n", src.Frames())
	case "render":
		name := fmt.Sprintf("frame-%03d.png", *frameN)
		if len(fields) > 1 {
			name = fields[1]
		} else {
			*frameN++
		}
		outPath := filepath.Join(outDir, name)
		if err := render(sc, outPath); err != nil {
			fmt.Printf("%v\n", err)
			return true
		}
		fmt.Printf("saved %s (cache %s)\n", outPath, sc.CacheState())
	case "help":
		fmt.Println("origin X Y      jump the window's top-left corner")
		fmt.Println("move DX DY      pan by a delta in scene units")
		fmt.Println("zoom F [FX FY]  scale the view by F around a focus pixel")
		fmt.Println("size W H        resize the viewport surface")
		fmt.Println("suspend|resume  pause or resume background cache fills")
		fmt.Println("invalidate      discard cached pixels")
		fmt.Println("tick            advance the cache without saving a frame")
		fmt.Println("info            show window, zoom and cache state")
		fmt.Println("render [FILE]   save the current view as PNG")
		fmt.Println("quit            exit")
	case "quit", "exit":
		return false
	default:
		fmt.Printf("unknown command %q, try help\n", fields[0])
	}
	return true
}

func twoInts(args []string, usage string) (int, int, bool) {
	if len(args) != 2 {
		fmt.Printf("usage: %s\n", usage)
		return 0, 0, false
	}
	a, errA := strconv.Atoi(args[0])
	b, errB := strconv.Atoi(args[1])
	if errA != nil || errB != nil {
		fmt.Printf("usage: %s\n", usage)
		return 0, 0, false
	}
	return a, b, true
}

func status(sc *scene.Scene) {
	vp := sc.Viewport()
	win := vp.Window()
	fmt.Printf("window %dx%d at (%d,%d)  zoom %.4f  cache %s\n",
		win.Dx(), win.Dy(), win.Min.X, win.Min.Y, vp.Zoom(), sc.CacheState())
}

func render(sc *scene.Scene, outPath string) error {
	size := sc.Viewport().PhysicalSize()
	frame := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	sc.Draw(frame)

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := atomic.WriteFile(outPath, &buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	return nil
}
