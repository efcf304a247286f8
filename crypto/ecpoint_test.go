// Copyright © 2019 Binance
//
// This file is part of Binance. The full Binance copyright notice, including
// terms governing use, modification, and redistribution, is contained in the
// file LICENSE at the root of the source code distribution tree.

package crypto_test

import (
	"crypto/elliptic"
	"math/big"
	"reflect"
	"testing"

	. "github.com/vaultguard/mpc-coordinator/crypto"
	"github.com/vaultguard/mpc-coordinator/tss"
)

func TestFlattenECPoints(t *testing.T) {
	type args struct {
		in []*ECPoint
	}
	tests := []struct {
		name    string
		args    args
		want    []*big.Int
		wantErr bool
	}{{
		name: "flatten with 2 points (happy)",
		args: args{[]*ECPoint{
			NewECPointNoCurveCheck(tss.EC(), big.NewInt(1), big.NewInt(2)),
			NewECPointNoCurveCheck(tss.EC(), big.NewInt(3), big.NewInt(4)),
		}},
		want: []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(4)},
	}, {
		name: "flatten with nil point (expects err)",
		args: args{[]*ECPoint{
			NewECPointNoCurveCheck(tss.EC(), big.NewInt(1), big.NewInt(2)),
			nil,
			NewECPointNoCurveCheck(tss.EC(), big.NewInt(3), big.NewInt(4))},
		},
		want:    nil,
		wantErr: true,
	}, {
		name:    "flatten with nil `in` slice",
		args:    args{nil},
		want:    nil,
		wantErr: true,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FlattenECPoints(tt.args.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("FlattenECPoints() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlattenECPoints() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnFlattenECPoints(t *testing.T) {
	type args struct {
		in []*big.Int
	}
	tests := []struct {
		name    string
		args    args
		want    []*ECPoint
		wantErr bool
	}{{
		name: "un-flatten 2 points (happy)",
		args: args{[]*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(4)}},
		want: []*ECPoint{
			NewECPointNoCurveCheck(tss.EC(), big.NewInt(1), big.NewInt(2)),
			NewECPointNoCurveCheck(tss.EC(), big.NewInt(3), big.NewInt(4)),
		},
	}, {
		name:    "un-flatten uneven len(points) (expects err)",
		args:    args{[]*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}},
		want:    nil,
		wantErr: true,
	}, {
		name:    "un-flatten with nil `in` slice",
		args:    args{nil},
		want:    nil,
		wantErr: true,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnFlattenECPoints(tss.EC(), tt.args.in, true)
			if (err != nil) != tt.wantErr {
				t.Errorf("UnFlattenECPoints() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("UnFlattenECPoints() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddECPoints(t *testing.T) {
	curveList := []*elliptic.CurveParams{elliptic.P224().Params(), elliptic.P256().Params(), elliptic.P384().Params()}

	// Check 2 + (N-2) = identity element, where N is the order of a given elliptic curve group
	for i := 0; i < len(curveList); i++ {
		minus2 := big.NewInt(-2)
		ECPoint1 := ScalarBaseMult(curveList[i], new(big.Int).Mod(minus2, curveList[i].N))
		ECPoint2 := ScalarBaseMult(curveList[i], big.NewInt(2))

		result, err := ECPoint1.Add(ECPoint2)
		if err != nil {
			t.Errorf("Add() error = %v", err)
		}
		if !result.IsInfinity() {
			t.Errorf("Add() expected the point at infinity, got X = %v, Y=%v", result.X(), result.Y())
		}
	}

	// Check 5*G + 5*G = 10*G
	for i := 0; i < len(curveList); i++ {
		ECPoint1 := ScalarBaseMult(curveList[i], big.NewInt(5))
		ECPoint2 := ScalarBaseMult(curveList[i], big.NewInt(5))

		result, err := ECPoint1.Add(ECPoint2)
		if err != nil {
			t.Errorf("Add() error = %v", err)
		}
		expect := ScalarBaseMult(curveList[i], big.NewInt(10))
		if result.X().Cmp(expect.X()) != 0 || result.Y().Cmp(expect.Y()) != 0 {
			t.Errorf("Add() error = Two points not the same, result X = %v, Y=%v, expect X = %v, Y=%v", result.X(), result.Y(), expect.X(), expect.Y())
		}
	}
}

func TestScalarBaseMult(t *testing.T) {
	curveList := []*elliptic.CurveParams{elliptic.P224().Params(), elliptic.P256().Params(), elliptic.P384().Params()}

	for i := 0; i < len(curveList); i++ {
		result := ScalarBaseMult(curveList[i], big.NewInt(0))
		if result.X() != nil || result.Y() != nil {
			t.Errorf("ScalarBaseMult(0) expect = nil,nil, got X = %v, Y=%v", result.X(), result.Y())
		}
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	for _, k := range []int64{1, 2, 5566, 424242} {
		p := ScalarBaseMult(tss.EC(), big.NewInt(k))
		compressed := p.CompressedBytes()
		if len(compressed) != 33 {
			t.Fatalf("CompressedBytes() expected 33 bytes, got %d", len(compressed))
		}
		recovered, err := DecompressPoint(tss.EC(), compressed)
		if err != nil {
			t.Fatalf("DecompressPoint() error = %v", err)
		}
		if !p.Equals(recovered) {
			t.Errorf("DecompressPoint() round-trip mismatch for k=%d: got X=%v Y=%v, want X=%v Y=%v",
				k, recovered.X(), recovered.Y(), p.X(), p.Y())
		}
	}
}

func TestDecompressPointRejectsBadLength(t *testing.T) {
	if _, err := DecompressPoint(tss.EC(), []byte{0x02, 0x01}); err == nil {
		t.Error("DecompressPoint() expected error for short input")
	}
}

func TestDecompressPointRejectsBadPrefix(t *testing.T) {
	p := ScalarBaseMult(tss.EC(), big.NewInt(7))
	bz := p.CompressedBytes()
	bz[0] = 0x04
	if _, err := DecompressPoint(tss.EC(), bz); err == nil {
		t.Error("DecompressPoint() expected error for invalid prefix byte")
	}
}
