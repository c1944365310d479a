package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/canopy-network/aedpos/consensus"
	"github.com/canopy-network/aedpos/lib"
)

var _ lib.MainChainSourceI = &Client{}

// Client is the caller of an aedpos RPC server. Pointed at a main chain node it is the miner list source of a side chain
type Client struct {
	rpcURL      string
	adminRPCURL string
	client      http.Client
}

// NewClient() creates a client of the servers at rpcURL and adminRPCURL, a zero timeout waits forever
func NewClient(rpcURL, adminRPCURL string, timeout time.Duration) *Client {
	return &Client{
		rpcURL:      strings.TrimSuffix(rpcURL, "/"),
		adminRPCURL: strings.TrimSuffix(adminRPCURL, "/"),
		client:      http.Client{Timeout: timeout},
	}
}

func (c *Client) Version() (version *string, err lib.ErrorI) {
	version = new(string)
	err = c.get(context.Background(), VersionRouteName, version)
	return
}

func (c *Client) Round() (p *lib.Round, err lib.ErrorI) {
	err = c.get(context.Background(), RoundRouteName, &p)
	return
}

// PreviousRound() returns nil during the first round
func (c *Client) PreviousRound() (p *lib.Round, err lib.ErrorI) {
	err = c.get(context.Background(), PreviousRoundRouteName, &p)
	return
}

func (c *Client) RoundByNumber(number uint64) (p *lib.Round, err lib.ErrorI) {
	err = c.get(context.Background(), RoundByNumberRouteName, &p, fmt.Sprint(number))
	return
}

func (c *Client) Command(pubkey string) (p *consensus.Command, err lib.ErrorI) {
	p = new(consensus.Command)
	err = c.get(context.Background(), CommandRouteName, p, pubkey)
	return
}

func (c *Client) LIB() (p *LibResponse, err lib.ErrorI) {
	p = new(LibResponse)
	err = c.get(context.Background(), LibRouteName, p)
	return
}

func (c *Client) MiningStatus() (p *MiningStatusResponse, err lib.ErrorI) {
	p = new(MiningStatusResponse)
	err = c.get(context.Background(), MiningStatusRouteName, p)
	return
}

func (c *Client) TermBlocks(term uint64) (p *TermBlocksResponse, err lib.ErrorI) {
	p = new(TermBlocksResponse)
	err = c.get(context.Background(), TermBlocksRouteName, p, fmt.Sprint(term))
	return
}

func (c *Client) ConsensusParams() (p *ConsensusParamsResponse, err lib.ErrorI) {
	p = new(ConsensusParamsResponse)
	err = c.get(context.Background(), ConsensusParamsRouteName, p)
	return
}

// RoundDiff() returns the json difference between two rounds
func (c *Client) RoundDiff(from, to uint64) (p *string, err lib.ErrorI) {
	bz, err := c.getRaw(context.Background(), RoundDiffRouteName, fmt.Sprint(from), fmt.Sprint(to))
	if err != nil {
		return nil, err
	}
	diff := string(bz)
	return &diff, nil
}

func (c *Client) ResourceUsage() (p *ResourceUsageResponse, err lib.ErrorI) {
	p = new(ResourceUsageResponse)
	err = c.get(context.Background(), ResourceUsageRouteName, p)
	return
}

func (c *Client) Config() (p *lib.Config, err lib.ErrorI) {
	p = new(lib.Config)
	err = c.get(context.Background(), ConfigRouteName, p)
	return
}

// Transaction() submits a signed transaction, a rejection is returned in the result
func (c *Client) Transaction(tx *lib.Transaction) (p *lib.TxResult, err lib.ErrorI) {
	bz, err := lib.MarshalJSON(tx)
	if err != nil {
		return nil, err
	}
	p = new(lib.TxResult)
	err = c.post(context.Background(), TxRouteName, bz, p)
	return
}

// MainChainMiners() returns the miner list of the current round of the chain
func (c *Client) MainChainMiners(ctx context.Context) ([]string, lib.ErrorI) {
	var r *lib.Round
	if err := c.get(ctx, RoundRouteName, &r); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, lib.ErrNilRound()
	}
	return r.MinerList(), nil
}

// url() builds the address of a route, filling its path parameters in order
func (c *Client) url(routeName string, params ...string) string {
	path := routePaths[routeName].Path
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if strings.HasPrefix(s, colon) && len(params) != 0 {
			segments[i], params = params[0], params[1:]
		}
	}
	base := c.rpcURL
	if strings.HasPrefix(path, adminPathPrefix) {
		base = c.adminRPCURL
	}
	return base + strings.Join(segments, "/")
}

func (c *Client) post(ctx context.Context, routeName string, json []byte, ptr any) lib.ErrorI {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(routeName), bytes.NewBuffer(json))
	if err != nil {
		return ErrPostRequest(err)
	}
	req.Header.Set(ContentType, ApplicationJSON)
	resp, err := c.client.Do(req)
	if err != nil {
		return ErrPostRequest(err)
	}
	return c.unmarshal(resp, ptr)
}

func (c *Client) get(ctx context.Context, routeName string, ptr any, params ...string) lib.ErrorI {
	bz, err := c.getRaw(ctx, routeName, params...)
	if err != nil {
		return err
	}
	return lib.UnmarshalJSON(bz, ptr)
}

// getRaw() returns the body of a successful GET
func (c *Client) getRaw(ctx context.Context, routeName string, params ...string) ([]byte, lib.ErrorI) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(routeName, params...), nil)
	if err != nil {
		return nil, ErrGetRequest(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ErrGetRequest(err)
	}
	return c.read(resp)
}

// unmarshal() decodes a successful response into ptr
func (c *Client) unmarshal(resp *http.Response, ptr any) lib.ErrorI {
	bz, err := c.read(resp)
	if err != nil {
		return err
	}
	return lib.UnmarshalJSON(bz, ptr)
}

// read() returns the body of a successful response, an error response is decoded into the server's error when possible
func (c *Client) read(resp *http.Response) ([]byte, lib.ErrorI) {
	defer func() { _ = resp.Body.Close() }()
	bz, err := io.ReadAll(io.LimitReader(resp.Body, int64(16*units.MB)))
	if err != nil {
		return nil, ErrReadBody(err)
	}
	if resp.StatusCode != http.StatusOK {
		serverErr := new(lib.Error)
		if e := lib.UnmarshalJSON(bz, serverErr); e == nil && serverErr.EModule != "" {
			return nil, serverErr
		}
		return nil, ErrHttpStatus(resp.Status, resp.StatusCode, bz)
	}
	return bz, nil
}
