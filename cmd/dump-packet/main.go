// Command dump-packet decodes a hex-encoded capture of post-login game
// frames and prints each message's opcode and payload length, using
// the same incremental Decoder the reactor drives off a live socket.
// It is the packet-dump analogue of the teacher's cmd/test-decrypt.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"

	"github.com/lare96/rsbotgroup/game"
	"github.com/lare96/rsbotgroup/isaac"
)

func main() {
	hexInput := flag.String("hex", "", "hex-encoded bytes to decode (required)")
	seed1 := flag.Uint64("seed1", 0, "ISAAC seed word 1")
	seed2 := flag.Uint64("seed2", 0, "ISAAC seed word 2")
	seed3 := flag.Uint64("seed3", 0, "ISAAC seed word 3")
	seed4 := flag.Uint64("seed4", 0, "ISAAC seed word 4")
	flag.Parse()

	if *hexInput == "" {
		log.Fatal("-hex is required")
	}

	data, err := hex.DecodeString(*hexInput)
	if err != nil {
		log.Fatalf("decoding hex input: %v", err)
	}

	decryptor := isaac.New([4]uint32{uint32(*seed1), uint32(*seed2), uint32(*seed3), uint32(*seed4)})
	decoder := game.NewDecoder(decryptor)

	messages, consumed, err := decoder.Decode(data)
	if err != nil {
		log.Fatalf("decoding: %v", err)
	}

	for i, msg := range messages {
		fmt.Printf("[%d] opcode=%d size=%d payloadLen=%d\n", i, msg.Opcode, msg.Size, len(msg.Payload.Bytes()))
	}
	fmt.Printf("consumed %d of %d bytes\n", consumed, len(data))
}
