// Package isaac implements the ISAAC keystream generator (Bob Jenkins,
// 1996) used by the RuneScape 317 protocol to offset game message
// opcodes after login. Two independent instances are seeded per
// session: one for outbound (encryptor), one for inbound (decryptor).
package isaac

const (
	sizeLog = 8
	size    = 1 << sizeLog // 256
	mask    = (size - 1) << 2
)

// Cipher is a single ISAAC keystream generator. It is not safe for
// concurrent use; each Cipher belongs to exactly one connection
// direction for the life of a session.
type Cipher struct {
	mem     [size]uint32
	results [size]uint32
	a, b, c uint32
	pos     int
}

// New seeds a Cipher with four 32-bit words, as produced by the login
// handshake (client or server seed words). The seed is expanded into
// the full internal state and the first block of output words is
// generated immediately so the first call to Next returns real output.
func New(seed [4]uint32) *Cipher {
	c := &Cipher{}
	copy(c.results[:4], seed[:])
	c.init()
	return c
}

// Next returns the next 32-bit keystream word, consuming one word of
// output. When the current block is exhausted a new block of 256
// words is generated.
func (c *Cipher) Next() uint32 {
	if c.pos == 0 {
		c.generate()
		c.pos = size
	}
	c.pos--
	return c.results[c.pos]
}

func (c *Cipher) init() {
	var a, b, d, e, f, g, h, i uint32
	a, b, d, e, f, g, h, i = 0x9E3779B9, 0x9E3779B9, 0x9E3779B9, 0x9E3779B9,
		0x9E3779B9, 0x9E3779B9, 0x9E3779B9, 0x9E3779B9

	for range 4 {
		a, b, d, e, f, g, h, i = mix(a, b, d, e, f, g, h, i)
	}

	for r := range 2 {
		for j := 0; j < size; j += 8 {
			if r == 0 {
				a += c.results[j]
				b += c.results[j+1]
				d += c.results[j+2]
				e += c.results[j+3]
				f += c.results[j+4]
				g += c.results[j+5]
				h += c.results[j+6]
				i += c.results[j+7]
			} else {
				a += c.mem[j]
				b += c.mem[j+1]
				d += c.mem[j+2]
				e += c.mem[j+3]
				f += c.mem[j+4]
				g += c.mem[j+5]
				h += c.mem[j+6]
				i += c.mem[j+7]
			}

			a, b, d, e, f, g, h, i = mix(a, b, d, e, f, g, h, i)

			c.mem[j] = a
			c.mem[j+1] = b
			c.mem[j+2] = d
			c.mem[j+3] = e
			c.mem[j+4] = f
			c.mem[j+5] = g
			c.mem[j+6] = h
			c.mem[j+7] = i
		}
	}

	c.generate()
	c.pos = size
}

func mix(a, b, d, e, f, g, h, i uint32) (uint32, uint32, uint32, uint32, uint32, uint32, uint32, uint32) {
	a ^= b << 11
	e += a
	b += d
	b ^= d >> 2
	f += b
	d += e
	d ^= e << 8
	g += d
	e += f
	e ^= f >> 16
	h += e
	f += g
	f ^= g << 10
	i += f
	g += h
	g ^= h >> 4
	a += g
	h += i
	h ^= i << 8
	b += h
	i += a
	i ^= a >> 9
	d += i
	a += b
	return a, b, d, e, f, g, h, i
}

// generate runs one ISAAC round, refilling c.results with a fresh
// block of 256 output words and advancing the internal accumulator.
func (c *Cipher) generate() {
	c.c++
	c.b += c.c

	for i := 0; i < size; i++ {
		x := c.mem[i]
		switch i & 3 {
		case 0:
			c.a ^= c.a << 13
		case 1:
			c.a ^= c.a >> 6
		case 2:
			c.a ^= c.a << 2
		case 3:
			c.a ^= c.a >> 16
		}
		c.a += c.mem[(i+128)&255]

		y := c.mem[(x>>2)&255] + c.a + c.b
		c.mem[i] = y

		c.b = c.mem[(y>>10)&255] + x
		c.results[i] = c.b
	}
}
