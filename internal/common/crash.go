// -----------------------------------------------------------------------
// Crash Protection - fatal panic capture with post-mortem crash files
// -----------------------------------------------------------------------

package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// CrashLogDir is where crash reports are written, set at startup
var CrashLogDir = "./logs"

// InstallCrashHandler prepares the crash report directory. Call once at
// the start of main, paired with a deferred RecoverWithCrashFile.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "crash handler: cannot create %s: %v\n", CrashLogDir, err)
	}
}

// RecoverWithCrashFile is the deferred recovery for main. It writes a
// crash report and exits non-zero instead of letting the runtime print a
// bare stack to a lost terminal.
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, stackTrace(false))
		os.Exit(1)
	}
}

// WriteCrashFile dumps the panic, all goroutine stacks, and runtime stats
// to a timestamped file. Returns the file path, empty when the write failed.
func WriteCrashFile(panicVal interface{}, stack string) string {
	path := filepath.Join(CrashLogDir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))

	var report bytes.Buffer
	fmt.Fprintf(&report, "=== BIDSCOUT CRASH REPORT ===\n")
	fmt.Fprintf(&report, "Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&report, "Version: %s\n\n", GetFullVersion())
	fmt.Fprintf(&report, "Panic: %v\n\n", panicVal)
	fmt.Fprintf(&report, "--- stack ---\n%s\n", stack)
	fmt.Fprintf(&report, "--- all goroutines ---\n%s\n", stackTrace(true))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(&report, "--- runtime ---\n")
	fmt.Fprintf(&report, "goroutines=%d cpus=%d os=%s arch=%s\n", runtime.NumGoroutine(), runtime.NumCPU(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&report, "alloc=%dMB sys=%dMB gc=%d\n", mem.Alloc/1024/1024, mem.Sys/1024/1024, mem.NumGC)

	// Unbuffered write; buffered IO is not trustworthy mid-crash
	if err := os.WriteFile(path, report.Bytes(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "crash handler: cannot write report: %v\n%s", err, report.String())
		return ""
	}

	fmt.Fprintf(os.Stderr, "\nFATAL: crash report saved to %s\npanic: %v\n", path, panicVal)
	return path
}

// stackTrace captures the current goroutine's stack, or every goroutine's
// when all is true, growing the buffer until the dump fits.
func stackTrace(all bool) string {
	size := 8 * 1024
	if all {
		size = 256 * 1024
	}
	for {
		buf := make([]byte, size)
		n := runtime.Stack(buf, all)
		if n < len(buf) {
			return string(buf[:n])
		}
		size *= 2
		if size > 64*1024*1024 {
			return string(buf[:n])
		}
	}
}
