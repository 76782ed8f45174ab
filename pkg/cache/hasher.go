package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"broker/pkg/broker"
)

// solveKeyVersion меняется при изменении формата кэшированного результата
const solveKeyVersion = "v1"

// ProblemHash вычисляет детерминированный хеш задачи для ключа кэша.
// Порядок поставщиков и покупателей значим, он определяет результат.
func ProblemHash(p *broker.Problem) string {
	if p == nil {
		return ""
	}

	hash := sha256.Sum256(problemToCanonical(p))
	return hex.EncodeToString(hash[:16])
}

// problemToCanonical: s:..;d:..;p:..;r:..;t:row|row;
func problemToCanonical(p *broker.Problem) []byte {
	var b strings.Builder

	writeVector(&b, "s", p.Supply)
	writeVector(&b, "d", p.Demand)
	writeVector(&b, "p", p.PurchaseCosts)
	writeVector(&b, "r", p.SellingPrices)

	b.WriteString("t:")
	for i, row := range p.TransportCosts {
		if i > 0 {
			b.WriteByte('|')
		}
		writeInts(&b, row)
	}
	b.WriteByte(';')

	return []byte(b.String())
}

func writeVector(b *strings.Builder, tag string, v []int64) {
	b.WriteString(tag)
	b.WriteByte(':')
	writeInts(b, v)
	b.WriteByte(';')
}

func writeInts(b *strings.Builder, v []int64) {
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(x, 10))
	}
}

// BuildSolveKey строит ключ кэша для результата решения
func BuildSolveKey(problemHash string) string {
	return "solve:" + solveKeyVersion + ":" + problemHash
}
