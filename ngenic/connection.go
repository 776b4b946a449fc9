package ngenic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/evcc-io/evcc/api"
	"github.com/evcc-io/evcc/util"
	"github.com/evcc-io/evcc/util/request"
	"golang.org/x/oauth2"
)

// Connection is the Ngenic Tune API connection
type Connection struct {
	client *request.Helper
	uri    string
}

// NewConnection creates a new Tune API connection. An empty uri selects the public API.
func NewConnection(log *util.Logger, ts oauth2.TokenSource, uri string) *Connection {
	client := request.NewHelper(log)
	client.Transport = &oauth2.Transport{
		Source: ts,
		Base:   client.Transport,
	}

	if uri == "" {
		uri = API_URL_BASE
	}

	return &Connection{
		client: client,
		uri:    strings.TrimSuffix(uri, "/"),
	}
}

// Returns the http header for http requests to the Tune API
func (c *Connection) header() http.Header {
	return http.Header{
		"Accept":       {"application/json"},
		"Content-Type": {"application/json"},
	}
}

func (c *Connection) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	uri := c.uri + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return nil, err
	}
	req.Header = c.header()

	return req, nil
}

func (c *Connection) getJSON(ctx context.Context, path string, res any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}

	return apiError(c.client.DoJSON(req, res))
}

// apiError maps rejected credentials to ErrUnauthorized
func apiError(err error) error {
	var se request.StatusError
	if errors.As(err, &se) && se.HasStatus(http.StatusUnauthorized, http.StatusForbidden) {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return err
}

// Tunes lists all tunes the token has access to. Listed tunes do not carry rooms.
func (c *Connection) Tunes(ctx context.Context) ([]Tune, error) {
	var res []Tune
	if err := c.getJSON(ctx, TUNES_URL, &res); err != nil {
		return nil, fmt.Errorf("error getting tunes: %w", err)
	}
	return res, nil
}

func (c *Connection) Tune(ctx context.Context, tuneUuid string) (Tune, error) {
	var res Tune
	if err := c.getJSON(ctx, fmt.Sprintf(TUNE_URL, tuneUuid), &res); err != nil {
		return res, fmt.Errorf("error getting tune %s: %w", tuneUuid, err)
	}
	return res, nil
}

func (c *Connection) Rooms(ctx context.Context, tuneUuid string) ([]Room, error) {
	var res []Room
	if err := c.getJSON(ctx, fmt.Sprintf(ROOMS_URL, tuneUuid), &res); err != nil {
		return nil, fmt.Errorf("error getting rooms: %w", err)
	}
	return res, nil
}

func (c *Connection) Room(ctx context.Context, tuneUuid, roomUuid string) (Room, error) {
	var res Room
	if err := c.getJSON(ctx, fmt.Sprintf(ROOM_URL, tuneUuid, roomUuid), &res); err != nil {
		return res, fmt.Errorf("error getting room %s: %w", roomUuid, err)
	}
	return res, nil
}

// UpdateRoom writes the room back to the API
func (c *Connection) UpdateRoom(ctx context.Context, tuneUuid string, room Room) error {
	req, err := c.newRequest(ctx, http.MethodPut, fmt.Sprintf(ROOM_URL, tuneUuid, room.Uuid), nil, request.MarshalJSON(room))
	if err != nil {
		return err
	}

	if _, err := c.client.DoBody(req); err != nil {
		return fmt.Errorf("error updating room %s: %w", room.Uuid, apiError(err))
	}
	return nil
}

func (c *Connection) Nodes(ctx context.Context, tuneUuid string) ([]Node, error) {
	var res []Node
	if err := c.getJSON(ctx, fmt.Sprintf(NODES_URL, tuneUuid), &res); err != nil {
		return nil, fmt.Errorf("error getting nodes: %w", err)
	}
	return res, nil
}

func (c *Connection) Node(ctx context.Context, tuneUuid, nodeUuid string) (Node, error) {
	var res Node
	if err := c.getJSON(ctx, fmt.Sprintf(NODE_URL, tuneUuid, nodeUuid), &res); err != nil {
		return res, fmt.Errorf("error getting node %s: %w", nodeUuid, err)
	}
	return res, nil
}

// MeasurementTypes lists the measurement types a node reports
func (c *Connection) MeasurementTypes(ctx context.Context, tuneUuid, nodeUuid string) ([]MeasurementType, error) {
	var res []MeasurementType
	if err := c.getJSON(ctx, fmt.Sprintf(MEASUREMENT_TYPES_URL, tuneUuid, nodeUuid), &res); err != nil {
		return nil, fmt.Errorf("error getting measurement types of node %s: %w", nodeUuid, err)
	}
	return res, nil
}

// LatestMeasurement returns the most recent measurement. The API answers
// 204 No Content when the node has not reported the type yet, this is
// returned as api.ErrNotAvailable.
func (c *Connection) LatestMeasurement(ctx context.Context, tuneUuid, nodeUuid string, typ MeasurementType) (Measurement, error) {
	var res Measurement

	query := url.Values{"type": {string(typ)}}
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf(LATEST_URL, tuneUuid, nodeUuid), query, nil)
	if err != nil {
		return res, err
	}

	b, err := c.client.DoBody(req)
	if err != nil {
		return res, fmt.Errorf("error getting latest %s: %w", typ, apiError(err))
	}

	if len(bytes.TrimSpace(b)) == 0 {
		return res, api.ErrNotAvailable
	}

	if err := json.Unmarshal(b, &res); err != nil {
		return res, fmt.Errorf("error decoding latest %s: %w", typ, err)
	}

	return res, nil
}

// Measurements returns the measurements between from (inclusive) and to
// (exclusive). Without a period the API aggregates the whole range into a
// single value. An empty result is returned as api.ErrNotAvailable.
func (c *Connection) Measurements(ctx context.Context, tuneUuid, nodeUuid string, typ MeasurementType, from, to, period string) ([]Measurement, error) {
	query := url.Values{
		"type": {string(typ)},
		"from": {from},
		"to":   {to},
	}
	if period != "" {
		query.Set("period", period)
	}

	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf(MEASUREMENTS_URL, tuneUuid, nodeUuid), query, nil)
	if err != nil {
		return nil, err
	}

	b, err := c.client.DoBody(req)
	if err != nil {
		return nil, fmt.Errorf("error getting %s measurements: %w", typ, apiError(err))
	}

	var res []Measurement
	switch b = bytes.TrimSpace(b); {
	case len(b) == 0:
	case b[0] == '{':
		var m Measurement
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("error decoding %s measurement: %w", typ, err)
		}
		res = append(res, m)
	default:
		if err := json.Unmarshal(b, &res); err != nil {
			return nil, fmt.Errorf("error decoding %s measurements: %w", typ, err)
		}
	}

	if len(res) == 0 {
		return nil, api.ErrNotAvailable
	}

	return res, nil
}

// Close releases idle connections
func (c *Connection) Close() {
	c.client.CloseIdleConnections()
}
