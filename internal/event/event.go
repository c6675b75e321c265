// Package event defines the canonical analytics event record, its TSV wire
// format, and the dynamic self-describing columns carried alongside it.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fields lists the fixed atomic-event columns in their TSV wire order. This
// is a representative subset of the full canonical schema (~130 columns in
// the full warehouse table); every field round-trips through Parse/Serialize.
var fields = []string{
	"app_id", "platform", "etl_tstamp", "collector_tstamp", "dvce_created_tstamp",
	"event", "event_id", "txn_id", "name_tracker", "v_tracker", "v_collector", "v_etl",
	"user_id", "user_ipaddress", "user_fingerprint", "domain_userid", "domain_sessionidx",
	"network_userid", "geo_country", "geo_region", "geo_city", "geo_zipcode",
	"geo_latitude", "geo_longitude", "geo_region_name", "ip_isp", "ip_organization",
	"ip_domain", "ip_netspeed", "page_url", "page_title", "page_referrer",
	"page_urlscheme", "page_urlhost", "page_urlport", "page_urlpath", "page_urlquery",
	"page_urlfragment", "refr_urlscheme", "refr_urlhost", "refr_urlport", "refr_urlpath",
	"refr_urlquery", "refr_urlfragment", "refr_medium", "refr_source", "refr_term",
	"mkt_medium", "mkt_source", "mkt_term", "mkt_content", "mkt_campaign",
	"se_category", "se_action", "se_label", "se_property", "se_value",
	"tr_orderid", "tr_affiliation", "tr_total", "tr_tax", "tr_shipping",
	"tr_city", "tr_state", "tr_country", "ti_orderid", "ti_sku", "ti_name",
	"ti_category", "ti_price", "ti_quantity", "pp_xoffset_min", "pp_xoffset_max",
	"pp_yoffset_min", "pp_yoffset_max", "useragent", "br_name", "br_family",
	"br_version", "br_type", "br_renderengine", "br_lang", "br_features_pdf",
	"br_features_flash", "br_features_java", "br_cookies", "br_colordepth",
	"br_viewwidth", "br_viewheight", "os_name", "os_family", "os_manufacturer",
	"os_timezone", "dvce_type", "dvce_ismobile", "dvce_screenwidth", "dvce_screenheight",
	"doc_charset", "doc_width", "doc_height", "tr_currency", "tr_total_base",
	"tr_tax_base", "tr_shipping_base", "ti_currency", "ti_price_base",
	"base_currency", "geo_timezone", "mkt_clickid", "mkt_network",
	"etl_tags", "dvce_sent_tstamp", "refr_domain_userid", "refr_dvce_tstamp",
	"domain_sessionid", "derived_tstamp", "event_vendor", "event_name",
	"event_format", "event_version", "event_fingerprint", "true_tstamp",
	"load_tstamp",
}

// Event is a parsed atomic event: the fixed columns as raw strings (the
// warehouse driver owns type coercion) plus the dynamic unstruct_event_* /
// contexts_* self-describing columns, each a raw JSON payload.
type Event struct {
	Fields  map[string]string
	Dynamic map[string]json.RawMessage
}

// New returns an Event with all fixed fields present but empty.
func New() *Event {
	e := &Event{
		Fields:  make(map[string]string, len(fields)),
		Dynamic: make(map[string]json.RawMessage),
	}
	for _, f := range fields {
		e.Fields[f] = ""
	}
	return e
}

// EventID returns the event_id column, used as the warehouse primary key.
func (e *Event) EventID() string {
	return e.Fields["event_id"]
}

// Parse decodes a single tab-separated analytics record into an Event. The
// fixed columns occupy the first len(fields) tab-separated positions; any
// further columns are ignored (self-describing entities are attached
// separately by the transform collaborator, not carried in the raw TSV).
func Parse(line []byte) (*Event, error) {
	cols := strings.Split(string(line), "\t")
	if len(cols) < len(fields) {
		return nil, fmt.Errorf("event: expected %d tab-separated columns, got %d", len(fields), len(cols))
	}
	e := New()
	for i, name := range fields {
		e.Fields[name] = cols[i]
	}
	return e, nil
}

// Serialize renders the Event's fixed columns back into a tab-separated
// record in the same column order used by Parse, so that
// Parse(Serialize(e)) == e for the fixed columns.
func (e *Event) Serialize() []byte {
	cols := make([]string, len(fields))
	for i, name := range fields {
		cols[i] = e.Fields[name]
	}
	return []byte(strings.Join(cols, "\t"))
}

// ColumnType is the warehouse-native type of a dynamic column, determined
// entirely by its name prefix.
type ColumnType int

// Recognised dynamic column types.
const (
	ColumnObject ColumnType = iota
	ColumnArray
)

// String implements fmt.Stringer.
func (c ColumnType) String() string {
	switch c {
	case ColumnObject:
		return "OBJECT"
	case ColumnArray:
		return "ARRAY"
	default:
		return "UNKNOWN"
	}
}

// ClassifyColumn determines the warehouse column type for a dynamic column
// name by its prefix. It panics on a name matching neither convention: the
// caller has violated the naming invariant, which is a programming bug, not
// a runtime condition to recover from.
func ClassifyColumn(name string) ColumnType {
	switch {
	case strings.HasPrefix(name, "unstruct_event_"):
		return ColumnObject
	case strings.HasPrefix(name, "contexts_"):
		return ColumnArray
	default:
		panic(fmt.Sprintf("event: column name %q matches neither unstruct_event_* nor contexts_*", name))
	}
}

// LoadTstamp formats t the way the load_tstamp fixed column expects it.
func LoadTstamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
