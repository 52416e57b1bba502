package resolve

import (
	"context"
	"sort"

	"shrike/internal/config"
	"shrike/internal/database"
	"shrike/internal/dnsbl"
	"shrike/internal/domain"
	"shrike/internal/geoip"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// checker is the lookup contract the orchestrator drives per address.
// *dnsbl.Client satisfies it.
type checker interface {
	Check(ctx context.Context, address string) ([]dnsbl.Outcome, error)
}

// AddressReport describes the outcome of resolving one address in a batch.
// Failures stay per address, a bad entry never aborts its siblings.
type AddressReport struct {
	Address string   `json:"ipAddress"`
	Codes   []string `json:"responseCodes,omitempty"`
	Error   string   `json:"error,omitempty"`
	Warning string   `json:"warning,omitempty"`
}

// Orchestrator accepts batches of addresses, drives the blocklist lookups and
// reconciles the results into the backing store.
type Orchestrator struct {
	store   *database.Handler
	locator *geoip.Locator

	newChecker func() checker
}

func NewOrchestrator(store *database.Handler, locator *geoip.Locator) *Orchestrator {
	return &Orchestrator{
		store:   store,
		locator: locator,
		newChecker: func() checker {
			return dnsbl.NewClient(dnsbl.Options{
				Zones:       config.GetLookupZones(),
				Resolvers:   config.GetLookupResolvers(),
				Timeout:     config.GetLookupTimeout(),
				Socks5Proxy: config.GetLookupSocks5Proxy(),
			})
		},
	}
}

// Enqueue resolves every address in the batch against the configured
// blocklist zones and persists the merged outcome per address. The returned
// reports keep the input order and echo every address, valid or not.
func (o *Orchestrator) Enqueue(ctx context.Context, addresses []string) []AddressReport {
	reports := make([]AddressReport, len(addresses))
	if len(addresses) == 0 {
		return reports
	}

	client := o.newChecker()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.GetLookupWorkers())

	for i, address := range addresses {
		i, address := i, address
		g.Go(func() error {
			reports[i] = o.resolveAddress(gctx, client, address)
			return nil
		})
	}

	_ = g.Wait()

	for _, report := range reports {
		if report.Error != "" {
			log.Warn("Address resolution failed", "ip", report.Address, "error", report.Error)
		}
	}

	return reports
}

func (o *Orchestrator) resolveAddress(ctx context.Context, client checker, address string) AddressReport {
	report := AddressReport{Address: address}

	outcomes, err := client.Check(ctx, address)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	merged := make([]string, 0)
	unreachable := 0
	for _, outcome := range outcomes {
		switch outcome.Status {
		case dnsbl.StatusListed:
			merged = append(merged, outcome.Codes...)
		case dnsbl.StatusUnreachable:
			unreachable++
			log.Warn("Blocklist zone unreachable", "zone", outcome.Zone, "ip", address, "error", outcome.Err)
		}
	}
	merged = dedupeCodes(merged)

	record, err := o.store.GetOrCreateIPDetails(ctx, address)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	o.enrichGeo(ctx, &record, address)

	if len(outcomes) == 0 {
		report.Warning = "no blocklist zones configured, previous response codes preserved"
		return report
	}

	if unreachable == len(outcomes) {
		// Every zone was unreachable. Keep the previously known flags
		// instead of silently clearing them.
		report.Warning = "all blocklist zones unreachable, previous response codes preserved"
		return report
	}

	codes := make([]domain.ResponseCode, 0, len(merged))
	for _, value := range merged {
		code, err := o.store.InternResponseCode(ctx, value)
		if err != nil {
			report.Error = err.Error()
			return report
		}
		codes = append(codes, code)
	}

	if err := o.store.ReplaceResponseCodes(ctx, &record, codes); err != nil {
		report.Error = err.Error()
		return report
	}

	report.Codes = merged
	return report
}

func (o *Orchestrator) enrichGeo(ctx context.Context, record *domain.IPDetails, address string) {
	if !o.locator.Available() {
		return
	}

	country := o.locator.Country(address)
	asnOrg := o.locator.ASNOrg(address)
	if err := o.store.UpdateIPDetailsGeo(ctx, record, country, asnOrg); err != nil {
		log.Warn("GeoIP enrichment failed", "ip", address, "error", err)
	}
}

func dedupeCodes(codes []string) []string {
	if len(codes) < 2 {
		return codes
	}

	sort.Strings(codes)
	deduped := codes[:1]
	for _, code := range codes[1:] {
		if code != deduped[len(deduped)-1] {
			deduped = append(deduped, code)
		}
	}
	return deduped
}
