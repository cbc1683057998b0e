package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

// DefaultUERE is the user equivalent range error, in meters, used to turn HDOP into an accuracy.
const DefaultUERE = 5.0

// ErrNoSentence is returned when the port yields no usable GGA or RMC sentence.
var ErrNoSentence = errors.New("no valid GPS data found")

// DeviceSensorProvider is responsible for retrieving location data from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication
	uere     float64
	maxLines int

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	reader *bufio.Scanner
	open   func(port string, baud int) (io.ReadWriteCloser, error)
	now    func() time.Time
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int, uere float64) *DeviceSensorProvider {
	if uere <= 0 {
		uere = DefaultUERE
	}
	return &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
		uere:     uere,
		maxLines: 50,
		open:     openSerial,
		now:      time.Now,
	}
}

// newDeviceSensorProviderFromReader wires a provider to an already open stream.
func newDeviceSensorProviderFromReader(r io.ReadWriteCloser, uere float64) *DeviceSensorProvider {
	d := NewDeviceSensorProvider("", 0, uere)
	d.open = func(string, int) (io.ReadWriteCloser, error) { return r, nil }
	return d
}

func openSerial(port string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: port, Baud: baud, ReadTimeout: 2 * time.Second})
}

// GetLocation reads sentences until a GGA or RMC fix is found. The port stays
// open between calls so the receiver's stream is not restarted every tick.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context) (Location, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		conn, err := d.open(d.port, d.baudRate)
		if err != nil {
			return Location{}, fmt.Errorf("failed to open serial port %s: %w", d.port, err)
		}
		d.conn = conn
		d.reader = bufio.NewScanner(conn)
	}

	for i := 0; i < d.maxLines; i++ {
		if err := ctx.Err(); err != nil {
			return Location{}, err
		}
		if !d.reader.Scan() {
			// A read timeout ends the scanner for good; reopen on the next call.
			err := d.reader.Err()
			d.closeLocked()
			if err != nil {
				return Location{}, fmt.Errorf("failed to read GPS stream: %w", err)
			}
			return Location{}, ErrNoSentence
		}
		loc, ok, err := ParseSentence(d.reader.Text(), d.uere)
		if err != nil || !ok {
			continue
		}
		loc.Timestamp = d.now()
		return loc, nil
	}

	return Location{}, ErrNoSentence
}

// Close releases the serial port.
func (d *DeviceSensorProvider) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *DeviceSensorProvider) closeLocked() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.reader = nil
	return err
}

// ParseSentence decodes one NMEA line. ok is false for sentence types other
// than GGA and RMC. A sentence without a fix yields a Location with Fix false.
func ParseSentence(line string, uere float64) (loc Location, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Location{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Location{}, false, err
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		if s.FixQuality == nmea.Invalid {
			return Location{}, true, nil
		}
		return Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Accuracy:  s.HDOP * uere,
			Fix:       true,
		}, true, nil
	case nmea.RMC:
		if s.Validity != nmea.ValidRMC {
			return Location{}, true, nil
		}
		return Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Fix:       true,
		}, true, nil
	}

	return Location{}, false, nil
}
