// Package shmbridge exchanges live raw video frames between processes over a
// GStreamer shared-memory socket.
//
// A Reader attaches to a socket path, negotiates the pixel layout from the
// capability string carried with every frame, converts planar YUV 4:2:0 to
// packed RGB on a worker pool and double-buffers the result for consumers.
// A Writer serializes frame buffers with a negotiated encoding and relative
// presentation timestamps.
//
// # Quick Start
//
// Reading frames published by another process:
//
//	r, err := shmbridge.NewReader(shmbridge.ReaderConfig{Name: "cam0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	if !r.Attach("/tmp/shm-cam0") {
//	    log.Fatal("attach failed")
//	}
//
//	ctx := context.Background()
//	for {
//	    ev, err := r.WaitFrame(ctx)
//	    if err != nil {
//	        return
//	    }
//	    r.View(func(fb *shmbridge.FrameBuffer, updated bool) {
//	        // fb.Pix holds fb.Spec.Size() bytes, valid only inside View
//	        render(ev.Seq, fb)
//	    })
//	}
//
// Publishing frames:
//
//	w, err := shmbridge.NewWriter(shmbridge.WriterConfig{Path: "/tmp/shm-out0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	fb := shmbridge.NewFrameBuffer(shmbridge.PixelSpec{Width: 640, Height: 480, Channels: 4})
//	for range time.Tick(16 * time.Millisecond) {
//	    draw(fb)
//	    w.Push(fb)
//	}
//
// # Supported Encodings
//
// Incoming capability strings:
//
//   - video/x-raw-rgb with bpp=24 (RGB) or bpp=32 (RGBA), copied verbatim
//   - video/x-raw-yuv with format=(fourcc)I420, converted to RGB (BT.601)
//
// Outgoing encodings:
//
//   - 8-bit, 4 channels: video/x-raw-rgb, bpp=32, big-endian RGBA masks
//   - 16-bit, 1 channel: video/x-raw-gray, bpp=16, big-endian
//
// Every outgoing encoding announces framerate=60/1.
//
// # Renegotiation
//
// The reader re-parses a capability string only when it differs from the
// previous one. The writer renegotiates (closes and reopens its socket) only
// when the frame geometry, the sample type or the target path changes.
//
// # Error Handling
//
// Per-frame failures never reach the caller: the frame is dropped, the last
// good frame stays visible, and a per-kind counter in ReaderStats.Drops is
// incremented. Attach, Write and Push report success as a bool; constructors,
// Close, WaitFrame, Warmup and LoadConfig return errors that can be matched
// with errors.Is against the sentinels in this package.
//
// # Thread Safety
//
//   - Latest, View, HasNewFrame, LastUpdate, Descriptor: safe from any goroutine
//   - WaitFrame: safe for concurrent use, each event reaches one waiter
//   - Attach, Close: safe for concurrent use
//   - Writer methods serialize on one mutex per writer
//
// # Requirements
//
// The GStreamer runtime with the shm (shmsrc, shmsink), gdp (gdppay,
// gdpdepay) and app plugins. Tests that need it skip when it is missing.
package shmbridge
