// Command sender is a DICOM sender simulator: it associates to a
// called AE title and sends one or more files via C-STORE, optionally
// repeating the burst with a delay between sends.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/egosumscientia/mini-pacs-edge/internal/dcmobject"
	"github.com/egosumscientia/mini-pacs-edge/internal/dimse"
)

func main() {
	host := flag.String("host", "127.0.0.1", "edge gateway host")
	port := flag.Int("port", 11112, "edge gateway port")
	callingAET := flag.String("calling-aet", "SENDER", "calling AE title")
	calledAET := flag.String("called-aet", "MINI_EDGE", "called AE title")
	burst := flag.Int("burst", 1, "number of times to resend the file set")
	delayMS := flag.Int("delay-ms", 0, "delay between sends, in milliseconds")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: sender [flags] <path> [path ...]")
		os.Exit(2)
	}

	files, err := collectFiles(paths)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sender:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "sender: no DICOM files found")
		os.Exit(1)
	}

	if err := sendFiles(*host, *port, *callingAET, *calledAET, files, *burst, *delayMS); err != nil {
		fmt.Fprintln(os.Stderr, "sender:", err)
		os.Exit(1)
	}
}

// collectFiles expands each path: a directory is walked recursively
// for *.dcm files via doublestar's globbing, a file is taken as-is.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(p), "**/*.dcm")
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			files = append(files, filepath.Join(p, m))
		}
	}
	return files, nil
}

func sendFiles(host string, port int, callingAET, calledAET string, files []string, burst, delayMS int) error {
	ctx := context.Background()
	dialer := dimse.TCPDialer{Timeout: 10 * time.Second}
	assoc, err := dialer.Associate(ctx, dimse.AssociationConfig{
		Host: host, Port: port, CallingAE: callingAET, CalledAE: calledAET,
	})
	if err != nil {
		return fmt.Errorf("association failed: %w", err)
	}
	defer assoc.Release()

	for i := 0; i < burst; i++ {
		for _, path := range files {
			obj, err := dcmobject.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "sender: %s: %v\n", path, err)
				continue
			}
			if !dcmobject.ValidUID(obj.StudyInstanceUID) || !dcmobject.ValidUID(obj.SOPInstanceUID) {
				fmt.Fprintf(os.Stderr, "sender: %s: malformed study or SOP instance UID\n", path)
				continue
			}
			status, err := assoc.SendCStore(ctx, obj)
			if err != nil {
				fmt.Printf("%s burst=%d status=error(%v)\n", path, i+1, err)
				continue
			}
			fmt.Printf("%s burst=%d status=0x%04X\n", path, i+1, status)
			if delayMS > 0 {
				time.Sleep(time.Duration(delayMS) * time.Millisecond)
			}
		}
	}
	return nil
}

