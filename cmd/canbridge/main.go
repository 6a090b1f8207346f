//go:build linux

// canbridge emulates one transparent mode serial-CAN converter in software :
// bytes arriving on a serial channel are segmented into CAN frames with a
// fixed identifier and published on a socketcan interface, payloads of
// matching frames are forwarded back as raw bytes. Useful on a bench where
// only one physical converter is available.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	sockcan "github.com/brutella/can"
	log "github.com/sirupsen/logrus"

	"github.com/ZeroShotData/DynamixelSDKwithCAN/pkg/can"
	"github.com/ZeroShotData/DynamixelSDKwithCAN/pkg/serial"
	_ "github.com/ZeroShotData/DynamixelSDKwithCAN/pkg/serial/virtual"
	"github.com/ZeroShotData/DynamixelSDKwithCAN/pkg/transport"
)

func main() {
	var (
		backend   = flag.String("backend", "serial", "channel backend (serial, virtual)")
		portName  = flag.String("port", "/dev/ttyUSB0", "serial port or virtual channel address")
		ifaceName = flag.String("can", "can0", "socketcan interface name")
		canId     = flag.Uint("id", uint(transport.DefaultCanID), "CAN identifier")
		extended  = flag.Bool("extended", false, "use 29 bit identifier")
		baudRate  = flag.Int("baud", transport.DefaultBaudRate, "serial baud rate")
		debug     = flag.Bool("debug", false, "trace every frame")
	)
	flag.Parse()
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	id, err := can.NewIdentifier(uint32(*canId), *extended)
	if err != nil {
		log.Fatal(err)
	}
	channel, err := serial.NewChannel(*backend, *portName, *baudRate)
	if err != nil {
		log.Fatal(err)
	}
	if err := channel.Open(); err != nil {
		log.Fatalf("open %v : %v", *portName, err)
	}
	defer channel.Close()

	bus, err := sockcan.NewBusForInterfaceWithName(*ifaceName)
	if err != nil {
		log.Fatalf("open %v : %v", *ifaceName, err)
	}

	// CAN -> serial : payloads of frames matching the identifier are
	// forwarded verbatim, everything else on the bus is ignored
	bus.SubscribeFunc(func(frame sockcan.Frame) {
		if frame.ID != id.Encoded() {
			return
		}
		data := frame.Data[:frame.Length]
		log.Debugf("rx %v % X", id, data)
		if _, err := channel.Write(data); err != nil {
			log.Errorf("serial write : %v", err)
		}
	})
	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			log.Errorf("can bus : %v", err)
		}
	}()

	// serial -> CAN : segment the raw byte stream into 8 byte payloads.
	// Frame boundaries inside the stream do not matter, transparent mode
	// reassembles bytes in order on the far side.
	go func() {
		buffer := make([]byte, 256)
		for {
			n, err := channel.Read(buffer, 20*time.Millisecond)
			if err != nil {
				log.Errorf("serial read : %v", err)
				return
			}
			for _, chunk := range can.Segment(id, buffer[:n]) {
				frame := sockcan.Frame{ID: id.Encoded(), Length: uint8(len(chunk.Data))}
				copy(frame.Data[:], chunk.Data)
				log.Debugf("tx %v % X", id, chunk.Data)
				if err := bus.Publish(frame); err != nil {
					log.Errorf("can publish : %v", err)
				}
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	_ = bus.Disconnect()
}
