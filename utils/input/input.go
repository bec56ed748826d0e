package input

import (
	"context"
	"errors"
	"fmt"

	"git.fiblab.net/general/common/v2/cache"
	"git.fiblab.net/general/common/v2/mongoutil"
	"git.fiblab.net/general/common/v2/protoutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"github.com/tsinghua-fib-lab/minqueue-tls/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/protobuf/proto"
)

// Load 加载地图
// 功能：按配置从文件或MongoDB（带本地缓存）加载地图并建立索引
// 参数：in-输入配置，cacheDir-缓存目录（为空则禁用缓存）
// 返回：地图索引；加载失败时返回ErrConfiguration
// 说明：文件优先级高于MongoDB
func Load(in config.Input, cacheDir string) (*Map, error) {
	if in.Map.File != "" {
		var m mapv2.Map
		if err := protoutil.UnmarshalFromFile(&m, in.Map.File); err != nil {
			return nil, fmt.Errorf("%w: load map from file %s: %v", entity.ErrConfiguration, in.Map.File, err)
		}
		return NewMap(&m), nil
	}
	if !preCheckCache(cacheDir) {
		cacheDir = ""
	}
	var client *mongo.Client
	if in.URI != "" {
		client = mongoutil.NewClient(in.URI)
		defer client.Disconnect(context.Background())
	} else if !in.Map.OnlyCache {
		return nil, fmt.Errorf("%w: map input needs a file, a mongo uri or only_cache", entity.ErrConfiguration)
	}
	m, err := load[mapv2.Map](client, in.Map, cacheDir, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: load map %s.%s: %v", entity.ErrConfiguration, in.Map.DB, in.Map.Col, err)
	}
	return NewMap(m), nil
}

// load 从MongoDB或缓存中加载数据（泛型函数）
// 参数：client-MongoDB客户端，inputPath-输入路径配置，cacheDir-缓存目录，classNameMapper-类名映射器，handler-数据处理函数，opts-查询选项
// 返回：加载的数据对象
// 算法说明：
// 1. 获取MongoDB集合：根据输入路径配置获取集合
// 2. 定义下载函数：如果不需要仅缓存则定义下载逻辑
// 3. 缓存加载：使用缓存机制加载数据
func load[T any, PT interface {
	proto.Message
	*T
}](
	client *mongo.Client,
	inputPath config.InputPath,
	cacheDir string,
	classNameMapper func(string) string,
	handler func(className string, pb any, rawBson bson.Raw) error,
	opts ...*options.FindOptions,
) (PT, error) {
	var downloadFunc func() PT
	var downloadErr error
	if !inputPath.OnlyCache && client != nil {
		coll := mongoutil.GetMongoColl(client, inputPath)
		downloadFunc = func() PT {
			pb, errs := mongoutil.DownloadPbFromMongo[T, PT](context.Background(), coll, classNameMapper, handler, opts...)
			if len(errs) > 0 {
				for _, err := range errs {
					log.Errorf("failed to download: %v", err)
				}
				downloadErr = errors.Join(errs...)
			}
			return pb
		}
	}
	log.Infof("start fetching from %s.%s", inputPath.DB, inputPath.Col)
	res, err := cache.LoadWithCache(cacheDir, inputPath, downloadFunc)
	if err != nil {
		return nil, err
	}
	if downloadErr != nil {
		return nil, downloadErr
	}
	log.Infof("finish fetching from %s.%s", inputPath.DB, inputPath.Col)
	return res, nil
}
