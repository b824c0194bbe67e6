package grammar

import "errors"

var (
	// ErrDuplicateRule 同一条产生式被重复注册
	ErrDuplicateRule = errors.New("产生式已注册")

	// ErrBadWeight 权重必须为正整数
	ErrBadWeight = errors.New("权重必须大于等于 1")

	// ErrWeightLength 权重向量长度与产生式表不一致
	ErrWeightLength = errors.New("权重向量长度与产生式数量不匹配")

	// ErrNotNonterminal 符号不是非终结符（没有任何以它为左部的产生式）
	ErrNotNonterminal = errors.New("符号不是非终结符")

	// ErrNoRule 非终结符没有可选的产生式（权重全为零）
	ErrNoRule = errors.New("非终结符没有可用产生式")
)
