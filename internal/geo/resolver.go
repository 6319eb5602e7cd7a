// Package geo resolves IP addresses to countries for records imported
// without a geography attribute.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver looks up countries in a local MaxMind database. Safe for
// concurrent use.
type Resolver struct {
	reader *geoip2.Reader
}

// Open opens a GeoIP2/GeoLite2 country database file.
func Open(path string) (*Resolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// Country returns the English country name for an IP address.
func (r *Resolver) Country(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid ip address: %q", ip)
	}

	country, err := r.reader.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip lookup failed: %w", err)
	}

	name := country.Country.Names["en"]
	if name == "" {
		return "", fmt.Errorf("no country for ip %q", ip)
	}
	return name, nil
}

// Close releases the underlying database.
func (r *Resolver) Close() error {
	return r.reader.Close()
}
