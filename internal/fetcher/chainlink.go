package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/rates"
)

const (
	aggregatorABIJSON = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`
)

var (
	aggregatorABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkFeed maps a currency pair to an aggregator contract.
type ChainlinkFeed struct {
	Pair    string
	Address string
}

// ChainlinkOptions parameterise the on-chain fetcher.
type ChainlinkOptions struct {
	RPCURL  string
	Timeout time.Duration
	Feeds   []ChainlinkFeed
}

// Chainlink reads FX rates from Chainlink price feed aggregators.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
	decimals  map[string]int32
}

// NewChainlink builds a new on-chain rate fetcher.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	return &Chainlink{
		opts:     opts,
		logger:   logger.With().Str("component", "chainlink_fetcher").Logger(),
		decimals: make(map[string]int32),
	}
}

// Name implements RateFetcher.
func (c *Chainlink) Name() string {
	return "chainlink"
}

// Fetch reads the latest round of every configured feed. Feeds that fail are
// reported in the joined error; the others are still returned.
func (c *Chainlink) Fetch(ctx context.Context) ([]rates.Observation, error) {
	if c.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}
	if len(c.opts.Feeds) == 0 {
		return nil, errors.New("no chainlink feeds configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]rates.Observation, 0, len(c.opts.Feeds))
	var errs []error
	for _, feed := range c.opts.Feeds {
		obs, err := c.fetchFeed(ctx, client, feed)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.Pair, err))
			continue
		}
		out = append(out, obs)
	}
	return out, errors.Join(errs...)
}

func (c *Chainlink) fetchFeed(ctx context.Context, client *ethclient.Client, feed ChainlinkFeed) (rates.Observation, error) {
	if !common.IsHexAddress(feed.Address) {
		return rates.Observation{}, fmt.Errorf("invalid aggregator address %q", feed.Address)
	}
	addr := common.HexToAddress(feed.Address)

	scale, err := c.feedDecimals(ctx, client, addr)
	if err != nil {
		return rates.Observation{}, err
	}

	outputs, err := c.call(ctx, client, addr, "latestRoundData")
	if err != nil {
		return rates.Observation{}, err
	}

	obs, err := decodeRound(feed.Pair, outputs, scale)
	if err != nil {
		return rates.Observation{}, err
	}
	c.logger.Debug().Str("pair", feed.Pair).Float64("rate", obs.Rate).Time("updated_at", obs.Timestamp).Msg("chainlink round read")
	return obs, nil
}

// decodeRound turns unpacked latestRoundData outputs into an observation,
// scaling the answer by the feed's decimals.
func decodeRound(pair string, outputs []interface{}, scale int32) (rates.Observation, error) {
	if len(outputs) != 5 {
		return rates.Observation{}, errors.New("unexpected latestRoundData response")
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return rates.Observation{}, errors.New("failed to decode answer")
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return rates.Observation{}, errors.New("failed to decode updatedAt")
	}
	if answer.Sign() <= 0 {
		return rates.Observation{}, fmt.Errorf("non-positive answer %s", answer)
	}
	if updatedAt.Sign() == 0 {
		return rates.Observation{}, errors.New("round not complete")
	}

	rate := decimal.NewFromBigInt(answer, -scale)
	return rates.Observation{
		Timestamp:    time.Unix(updatedAt.Int64(), 0).UTC(),
		CurrencyPair: pair,
		Rate:         rate.InexactFloat64(),
	}, nil
}

func (c *Chainlink) feedDecimals(ctx context.Context, client *ethclient.Client, addr common.Address) (int32, error) {
	key := addr.Hex()
	c.clientMux.Lock()
	scale, ok := c.decimals[key]
	c.clientMux.Unlock()
	if ok {
		return scale, nil
	}

	outputs, err := c.call(ctx, client, addr, "decimals")
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	d, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals")
	}

	c.clientMux.Lock()
	c.decimals[key] = int32(d)
	c.clientMux.Unlock()
	return int32(d), nil
}

func (c *Chainlink) call(ctx context.Context, client *ethclient.Client, addr common.Address, method string) ([]interface{}, error) {
	payload, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return aggregatorABI.Unpack(method, res)
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ RateFetcher = (*Chainlink)(nil)
