package client

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/OpenCHAMI/pductl/pkg/pdu"
)

// Endpoints lists the PDU endpoints the daemon serves.
func (c *Client) Endpoints() ([]string, error) {
	var endpoints []string
	err := c.do(http.MethodGet, "/", nil, &endpoints)
	return endpoints, err
}

// PDU returns a handle for the PDU served under endpoint.
func (c *Client) PDU(endpoint string) *PDU {
	return &PDU{client: c, prefix: "/" + url.PathEscape(endpoint)}
}

// PDU has the outlet methods of pdu.Controller, answered by the daemon.
type PDU struct {
	client *Client
	prefix string
}

func (p *PDU) GetOutletCount() (int, error) {
	var count int
	err := p.client.do(http.MethodGet, p.prefix+"/outlets", nil, &count)
	return count, err
}

func (p *PDU) GetOutletState(n int) (bool, error) {
	var state bool
	err := p.client.do(http.MethodGet, fmt.Sprintf("%s/outlet/%d", p.prefix, n), nil, &state)
	return state, err
}

func (p *PDU) SetOutletState(n int, state bool) error {
	return p.client.do(http.MethodPost, fmt.Sprintf("%s/outlet/%d", p.prefix, n), state, nil)
}

func (p *PDU) GetAllOutletStates() ([]bool, error) {
	var states []bool
	err := p.client.do(http.MethodGet, p.prefix+"/outlets/state", nil, &states)
	return states, err
}

// Inventory ignores name; the daemon names the inventory after the
// endpoint.
func (p *PDU) Inventory(name string) (*pdu.PDUInventory, error) {
	var inventory pdu.PDUInventory
	if err := p.client.do(http.MethodGet, p.prefix+"/inventory", nil, &inventory); err != nil {
		return nil, err
	}
	return &inventory, nil
}
