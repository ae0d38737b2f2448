// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command ctfwriter builds a small demonstration CTF trace on disk: one
// stream class with a clock-mapped event header and a single event
// class carrying an integer payload, three events appended and
// flushed into one packet, plus the accompanying textual metadata
// file.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	ctfir "github.com/efficios/babeltrace-ctfir"
	"github.com/spf13/cobra"
)

var outputDir string

func buildDemoTrace(dir string) error {
	trace, err := ctfir.NewTrace()
	if err != nil {
		return fmt.Errorf("new trace: %w", err)
	}

	clockClass, err := ctfir.NewClockClass("monotonic")
	if err != nil {
		return fmt.Errorf("new clock class: %w", err)
	}
	if err := clockClass.SetFrequency(1_000_000_000); err != nil {
		return fmt.Errorf("set clock frequency: %w", err)
	}
	if err := trace.AddClockClass(clockClass); err != nil {
		return fmt.Errorf("add clock class: %w", err)
	}

	clock, err := ctfir.NewClock(clockClass)
	if err != nil {
		return fmt.Errorf("new clock: %w", err)
	}

	timestampClass, err := ctfir.NewIntegerFieldClass(64, false)
	if err != nil {
		return fmt.Errorf("timestamp field class: %w", err)
	}
	if err := timestampClass.SetMappedClock(clockClass); err != nil {
		return fmt.Errorf("map timestamp to clock: %w", err)
	}

	eventHeaderClass := ctfir.NewStructFieldClass()
	if err := eventHeaderClass.AddField("id", mustUint32()); err != nil {
		return fmt.Errorf("event header id: %w", err)
	}
	if err := eventHeaderClass.AddField("timestamp", timestampClass); err != nil {
		return fmt.Errorf("event header timestamp: %w", err)
	}

	packetContextClass := ctfir.NewStructFieldClass()
	if err := packetContextClass.AddField("packet_size", mustUint64()); err != nil {
		return fmt.Errorf("packet_size: %w", err)
	}
	if err := packetContextClass.AddField("content_size", mustUint64()); err != nil {
		return fmt.Errorf("content_size: %w", err)
	}
	if err := packetContextClass.AddField("timestamp_begin", mustUint64()); err != nil {
		return fmt.Errorf("timestamp_begin: %w", err)
	}
	if err := packetContextClass.AddField("timestamp_end", mustUint64()); err != nil {
		return fmt.Errorf("timestamp_end: %w", err)
	}
	if err := packetContextClass.AddField("events_discarded", mustUint64()); err != nil {
		return fmt.Errorf("events_discarded: %w", err)
	}

	streamClass := ctfir.NewStreamClass()
	if err := streamClass.SetName("demo_stream"); err != nil {
		return fmt.Errorf("set stream class name: %w", err)
	}
	if err := streamClass.SetEventHeaderClass(eventHeaderClass); err != nil {
		return fmt.Errorf("set event header class: %w", err)
	}
	if err := streamClass.SetPacketContextClass(packetContextClass); err != nil {
		return fmt.Errorf("set packet context class: %w", err)
	}
	if err := streamClass.SetClock(clock); err != nil {
		return fmt.Errorf("set stream clock: %w", err)
	}

	eventClass, err := ctfir.NewEventClass(0, "demo_event")
	if err != nil {
		return fmt.Errorf("new event class: %w", err)
	}
	if err := eventClass.PayloadClass.AddField("value", mustUint32()); err != nil {
		return fmt.Errorf("payload value: %w", err)
	}

	if err := streamClass.AddEventClass(eventClass); err != nil {
		return fmt.Errorf("add event class: %w", err)
	}
	if err := trace.AddStreamClass(streamClass); err != nil {
		return fmt.Errorf("add stream class: %w", err)
	}

	opts := &ctfir.Options{OutputDir: dir}
	stream, err := ctfir.NewStream(streamClass, 0, opts)
	if err != nil {
		return fmt.Errorf("new stream: %w", err)
	}
	defer stream.Close()

	if err := stream.NewPacket(); err != nil {
		return fmt.Errorf("new packet: %w", err)
	}

	for i := uint32(0); i < 3; i++ {
		ev, err := ctfir.NewEvent(eventClass)
		if err != nil {
			return fmt.Errorf("new event: %w", err)
		}
		tsField, err := ev.Header.StructFieldByName("timestamp")
		if err != nil {
			return fmt.Errorf("header timestamp field: %w", err)
		}
		if err := tsField.SetUInt(uint64(i) * 1000); err != nil {
			return fmt.Errorf("set header timestamp: %w", err)
		}
		valueField, err := ev.Payload.StructFieldByName("value")
		if err != nil {
			return fmt.Errorf("payload value field: %w", err)
		}
		if err := valueField.SetUInt(uint64(i)); err != nil {
			return fmt.Errorf("set payload value: %w", err)
		}
		if err := stream.AppendEvent(ev); err != nil {
			return fmt.Errorf("append event %d: %w", i, err)
		}
	}

	if err := stream.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	metadata, err := ctfir.WriteMetadata(trace)
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	metadataPath := filepath.Join(dir, "metadata")
	if err := os.WriteFile(metadataPath, []byte(metadata), 0o644); err != nil {
		return fmt.Errorf("write metadata file: %w", err)
	}

	fmt.Printf("wrote %d bytes across %d packet(s) to %s\n", stream.StreamSizeBytes(), 1, dir)
	return nil
}

func mustUint32() *ctfir.FieldClass {
	fc, err := ctfir.NewIntegerFieldClass(32, false)
	if err != nil {
		panic(err)
	}
	return fc
}

func mustUint64() *ctfir.FieldClass {
	fc, err := ctfir.NewIntegerFieldClass(64, false)
	if err != nil {
		panic(err)
	}
	return fc
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "ctfwriter",
		Short: "Build and inspect CTF traces",
	}

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Write a small demonstration trace to --output",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			return buildDemoTrace(outputDir)
		},
	}
	buildCmd.Flags().StringVarP(&outputDir, "output", "o", "trace", "output directory")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the ctfwriter version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ctfwriter version 0.1.0")
		},
	}

	rootCmd.AddCommand(buildCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
