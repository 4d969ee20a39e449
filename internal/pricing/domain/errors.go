package domain

import "errors"

var (
	// ErrConfiguration 引擎或合约参数配置错误，属于编程错误，不应重试
	ErrConfiguration = errors.New("pricing: configuration error")
	// ErrInvalidMarketData 市场参数非法（价格、波动率、期限非正等）
	ErrInvalidMarketData = errors.New("pricing: invalid market data")
	// ErrInstrumentNotFound 合约未登记
	ErrInstrumentNotFound = errors.New("pricing: instrument not found")
)
