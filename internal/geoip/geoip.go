package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

// Locator resolves country names and ASN organisations for IP addresses
// from MaxMind databases. A nil or empty Locator is disabled and returns
// empty strings for every lookup.
type Locator struct {
	mu      sync.RWMutex
	country *geoip2.Reader
	asn     *geoip2.Reader
}

func Open(countryPath, asnPath string) *Locator {
	locator := &Locator{}
	if err := locator.Reload(countryPath, asnPath); err != nil {
		log.Warn("GeoIP enrichment running without all databases", "error", err)
	}
	return locator
}

// Reload swaps in readers for the given database paths. Empty paths
// disable the corresponding lookup. Old readers are closed after the swap.
func (l *Locator) Reload(countryPath, asnPath string) error {
	if l == nil {
		return errors.New("geoip locator not initialised")
	}

	var (
		errorList []error
		country   *geoip2.Reader
		asn       *geoip2.Reader
	)

	if countryPath != "" {
		if reader, err := geoip2.Open(countryPath); err == nil {
			country = reader
		} else {
			errorList = append(errorList, fmt.Errorf("country: %w", err))
		}
	}
	if asnPath != "" {
		if reader, err := geoip2.Open(asnPath); err == nil {
			asn = reader
		} else {
			errorList = append(errorList, fmt.Errorf("asn: %w", err))
		}
	}

	l.mu.Lock()
	oldCountry := l.country
	oldASN := l.asn
	l.country = country
	l.asn = asn
	l.mu.Unlock()

	if oldCountry != nil {
		_ = oldCountry.Close()
	}
	if oldASN != nil {
		_ = oldASN.Close()
	}

	return errors.Join(errorList...)
}

func (l *Locator) Available() bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.country != nil || l.asn != nil
}

func (l *Locator) Country(address string) string {
	if l == nil {
		return ""
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return ""
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.country == nil {
		return ""
	}

	record, err := l.country.Country(ip)
	if err != nil {
		return ""
	}

	if name := record.Country.Names["en"]; name != "" {
		return name
	}
	return strings.ToUpper(record.Country.IsoCode)
}

func (l *Locator) ASNOrg(address string) string {
	if l == nil {
		return ""
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return ""
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.asn == nil {
		return ""
	}

	record, err := l.asn.ASN(ip)
	if err != nil {
		return ""
	}
	return record.AutonomousSystemOrganization
}

func (l *Locator) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.country != nil {
		_ = l.country.Close()
		l.country = nil
	}
	if l.asn != nil {
		_ = l.asn.Close()
		l.asn = nil
	}
}
